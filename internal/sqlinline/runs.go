package sqlinline

const QEnqueueRun = `--sql d596243c-4c71-4825-bcee-bf7b3164cbd6
insert into pipeline_runs(
  id,
  status,
  prompt,
  style,
  negative_prompt,
  output,
  locale,
  stages,
  created_at,
  updated_at
)
values (
  $1::uuid,
  'queued',
  $2::text,
  $3::text,
  $4::text,
  $5::text,
  $6::text,
  '[]'::jsonb,
  now(),
  now()
);
`

const QRecordRun = `--sql c774ddd5-5614-4e52-a930-59560e58fd6f
insert into pipeline_runs(
  id,
  status,
  prompt,
  style,
  negative_prompt,
  output,
  locale,
  stages,
  error,
  created_at,
  started_at,
  finished_at,
  updated_at
)
values (
  $1::uuid,
  $2::text,
  $3::text,
  $4::text,
  $5::text,
  $6::text,
  $7::text,
  coalesce($8::jsonb, '[]'::jsonb),
  $9::jsonb,
  now(),
  $10::timestamptz,
  $11::timestamptz,
  now()
);
`

const QGetRun = `--sql a034aa80-5190-4183-b346-edb8c7083256
select id, status, prompt, style, negative_prompt, output, locale, stages, error, created_at, started_at, finished_at, updated_at
from pipeline_runs
where id = $1::uuid
limit 1;
`

const QListRuns = `--sql ccdaa9ed-d0a2-402a-81b3-159db5cb7648
select id, status, prompt, style, negative_prompt, output, locale, stages, error, created_at, started_at, finished_at, updated_at
from pipeline_runs
where (nullif($1::text, '') is null or status = $1::text)
order by created_at desc
limit $2::int;
`

const QClaimQueuedRun = `--sql 40eae73c-e8d6-4ecc-835a-e4010735d8b2
with next_run as (
    select id
    from pipeline_runs
    where status = 'queued'
    order by created_at asc
    for update skip locked
    limit 1
),
updated as (
    update pipeline_runs
    set status = 'running', started_at = now(), updated_at = now()
    where id in (select id from next_run)
    returning id, status, prompt, style, negative_prompt, output, locale, stages, error, created_at, started_at, finished_at, updated_at
)
select * from updated;
`

const QUpdateRunResult = `--sql 07119320-1fa4-489e-8fda-68597eedbd84
update pipeline_runs
set status = $2::text,
    stages = coalesce($3::jsonb, '[]'::jsonb),
    error = $4::jsonb,
    finished_at = $5::timestamptz,
    updated_at = now()
where id = $1::uuid;
`

const QMarkRunAborted = `--sql 78282af1-a169-4589-b6f7-4bce81212bbb
update pipeline_runs
set status = 'aborted', error = $2::jsonb, finished_at = now(), updated_at = now()
where id = $1::uuid and status = 'queued';
`

const QRequeueStaleRuns = `--sql 62ea31d6-a613-45db-8949-9a8620a86e5c
update pipeline_runs
set status = 'queued', started_at = null, updated_at = now()
where status = 'running'
  and updated_at < now() - make_interval(secs => $1::int);
`

const QCountRunsByStatusSince = `--sql 0ddfefc0-4fa0-4c60-aba6-4c3c9e795245
select status, count(*)
from pipeline_runs
where created_at >= $1::timestamptz
group by status;
`
