package sqlinline

const QUpsertBatchJobSnapshot = `--sql 7b8c9d0e-1f2a-4b3c-8d4e-5f6a7b8c9d06
insert into batch_job_snapshots (
  job_id, batch_id, position, title, content, status, progress,
  retry_count, result_url, error_message, updated_at
)
values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
on conflict (job_id)
do update set
  position = excluded.position,
  status = excluded.status,
  progress = excluded.progress,
  retry_count = excluded.retry_count,
  result_url = excluded.result_url,
  error_message = excluded.error_message,
  updated_at = now();
`

const QSelectBatchJobSnapshots = `--sql 2c3d4e5f-6a7b-4c8d-9e0f-1a2b3c4d5e07
select job_id, batch_id, position, title, content, status, progress,
       retry_count, result_url, error_message, updated_at
from batch_job_snapshots
where batch_id = $1
order by position asc, job_id;
`

const QSelectStaleBatches = `--sql 8d9e0f1a-2b3c-4d5e-8f6a-7b8c9d0e1f08
select batch_id
from batch_job_snapshots
group by batch_id
having count(*) filter (where status in ('pending', 'processing')) > 0
   and max(updated_at) < now() - make_interval(secs => $1)
order by batch_id;
`

const QClaimStaleBatchJobs = `--sql 5e6f7a8b-9c0d-4e1f-8a2b-3c4d5e6f7a09
with stale as (
    select job_id
    from batch_job_snapshots
    where batch_id = $1
      and status in ('pending', 'processing')
      and updated_at < now() - make_interval(secs => $2)
    order by position asc
    for update skip locked
),
claimed as (
    update batch_job_snapshots
    set updated_at = now()
    where job_id in (select job_id from stale)
    returning job_id
)
select count(*) from claimed;
`
