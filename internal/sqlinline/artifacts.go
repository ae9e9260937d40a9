package sqlinline

const QInsertArtifact = `--sql 76fd6fcc-c632-4717-9a77-6f7a5f6b96d4
insert into artifacts(id, run_id, kind, storage_key, content_type, bytes, created_at)
values ($1::uuid, $2::uuid, $3::text, $4::text, $5::text, $6::bigint, $7::timestamptz)
on conflict (id) do nothing;
`

const QListArtifactsByRun = `--sql 7582cdb0-250a-441d-9d27-9cd203d3a314
select id, run_id, kind, storage_key, content_type, bytes, created_at
from artifacts
where run_id = $1::uuid
order by created_at asc, kind asc;
`

const QListArtifactsByKind = `--sql d59d6358-ff79-43ab-9baa-a949e82e58af
select a.id, a.run_id, a.kind, a.storage_key, a.content_type, a.bytes, a.created_at, r.prompt
from artifacts a
join pipeline_runs r on r.id = a.run_id
where (nullif($1::text, '') is null or a.kind = $1::text)
order by a.created_at desc
limit $2::int;
`

const QGetArtifact = `--sql 7c68d528-68cc-4b16-a540-0076bfd942ad
select id, run_id, kind, storage_key, content_type, bytes, created_at
from artifacts
where id = $1::uuid
limit 1;
`

const QCountArtifactsSince = `--sql 0e722b22-5501-4290-920c-47fce8e023a7
select kind, count(*), coalesce(sum(bytes), 0)
from artifacts
where created_at >= $1::timestamptz
group by kind;
`
