package storage

const schema = `
CREATE TABLE IF NOT EXISTS mailbox_identities (
    id TEXT PRIMARY KEY,
    host TEXT NOT NULL,
    port INTEGER NOT NULL,
    username TEXT NOT NULL,
    password_ciphertext TEXT NOT NULL,
    password_nonce TEXT NOT NULL,
    keywords TEXT NOT NULL DEFAULT '[]',
    match_scope TEXT NOT NULL DEFAULT 'subject',
    message_cap INTEGER NOT NULL DEFAULT 0,
    llm_provider TEXT NOT NULL DEFAULT '',
    llm_model TEXT NOT NULL DEFAULT '',
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS base_profiles (
    identity_id TEXT PRIMARY KEY REFERENCES mailbox_identities(id) ON DELETE CASCADE,
    document TEXT NOT NULL,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS jobs (
    id TEXT PRIMARY KEY,
    identity_id TEXT NOT NULL REFERENCES mailbox_identities(id) ON DELETE CASCADE,
    message_id TEXT NOT NULL,
    fingerprint TEXT NOT NULL,
    title TEXT NOT NULL DEFAULT '',
    company TEXT NOT NULL DEFAULT '',
    location TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    skills TEXT NOT NULL DEFAULT '[]',
    posting_url TEXT NOT NULL DEFAULT '',
    apply_url TEXT NOT NULL DEFAULT '',
    confidence REAL,
    status TEXT NOT NULL DEFAULT 'prepared',
    parse_status TEXT NOT NULL DEFAULT 'parsed',
    provenance TEXT NOT NULL DEFAULT '',
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(identity_id, message_id, fingerprint)
);

CREATE TABLE IF NOT EXISTS resumes (
    id TEXT PRIMARY KEY,
    job_id TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
    document TEXT NOT NULL,
    artifact_url TEXT NOT NULL DEFAULT '',
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS processed_messages (
    identity_id TEXT NOT NULL REFERENCES mailbox_identities(id) ON DELETE CASCADE,
    message_id TEXT NOT NULL,
    processed_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY(identity_id, message_id)
);

CREATE INDEX IF NOT EXISTS idx_jobs_identity ON jobs(identity_id);
CREATE INDEX IF NOT EXISTS idx_jobs_created ON jobs(created_at);
CREATE INDEX IF NOT EXISTS idx_resumes_job ON resumes(job_id);
`
