package store

// SchemaSQL contains the backlog schema. Record ids encode the partition
// key: work_item ids are "dataset|bucket|item_id", assignment ids are
// "reviewer|dataset|bucket|item_id" so one reviewer's records form a
// contiguous range.
const SchemaSQL = `
    -- ==========================================================================
    -- WORK_ITEM TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS work_item SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS item_id ON work_item TYPE string;
    DEFINE FIELD IF NOT EXISTS dataset ON work_item TYPE string;
    DEFINE FIELD IF NOT EXISTS bucket ON work_item TYPE string;
    DEFINE FIELD IF NOT EXISTS status ON work_item TYPE string
        ASSERT $value IN ["draft", "approved", "deleted", "skipped"];
    DEFINE FIELD IF NOT EXISTS assigned_to ON work_item TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS assigned_at ON work_item TYPE option<datetime>;
    DEFINE FIELD IF NOT EXISTS question ON work_item TYPE string;
    DEFINE FIELD IF NOT EXISTS answer ON work_item TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS tags ON work_item TYPE array<string> DEFAULT [];
    DEFINE FIELD IF NOT EXISTS references ON work_item TYPE array<object> FLEXIBLE DEFAULT [];
    DEFINE FIELD IF NOT EXISTS turns ON work_item TYPE array<object> FLEXIBLE DEFAULT [];
    DEFINE FIELD IF NOT EXISTS total_reference_count ON work_item TYPE int DEFAULT 0;
    -- Derived at write time so it can participate in server-side sort.
    DEFINE FIELD IF NOT EXISTS has_answer ON work_item VALUE answer != NONE AND answer != "";
    DEFINE FIELD IF NOT EXISTS version ON work_item TYPE string;
    DEFINE FIELD IF NOT EXISTS updated_at ON work_item TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS reviewed_at ON work_item TYPE option<datetime>;

    DEFINE INDEX IF NOT EXISTS work_item_status ON work_item FIELDS status;
    DEFINE INDEX IF NOT EXISTS work_item_dataset ON work_item FIELDS dataset;
    DEFINE INDEX IF NOT EXISTS work_item_assigned ON work_item FIELDS assigned_to;
    DEFINE INDEX IF NOT EXISTS work_item_tags ON work_item FIELDS tags;

    -- ==========================================================================
    -- ASSIGNMENT TABLE (materialized "my assignments" view)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS assignment SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS reviewer ON assignment TYPE string;
    DEFINE FIELD IF NOT EXISTS dataset ON assignment TYPE string;
    DEFINE FIELD IF NOT EXISTS bucket ON assignment TYPE string;
    DEFINE FIELD IF NOT EXISTS item_id ON assignment TYPE string;
    DEFINE FIELD IF NOT EXISTS assigned_at ON assignment TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS assignment_reviewer ON assignment FIELDS reviewer;
`
