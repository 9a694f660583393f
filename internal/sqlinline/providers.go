package sqlinline

const QSelectProviderConfigs = `--sql 3f1f5a80-8f5e-4f2e-9f59-4f0d0a5c1a01
select provider_id, config
from provider_configs
order by provider_id;
`

const QUpsertProviderConfig = `--sql 9e0c2b44-5d7a-4a61-8f2c-0b1d6e3f7a02
insert into provider_configs (provider_id, config, updated_at)
values ($1, $2::jsonb, now())
on conflict (provider_id)
do update set config = excluded.config, updated_at = now();
`

const QDeleteProviderConfig = `--sql 6a7b8c9d-1e2f-4a3b-8c4d-5e6f7a8b9c03
delete from provider_configs
where provider_id = $1;
`

const QSelectFunctionAssignments = `--sql 0d1e2f3a-4b5c-4d6e-8f7a-9b0c1d2e3f04
select assignments
from function_assignments
where singleton = true;
`

const QUpsertFunctionAssignments = `--sql 5c6d7e8f-9a0b-4c1d-8e2f-3a4b5c6d7e05
insert into function_assignments (singleton, assignments, updated_at)
values (true, $1::jsonb, now())
on conflict (singleton)
do update set assignments = excluded.assignments, updated_at = now();
`
