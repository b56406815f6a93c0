package db

// SQL schema for the application database. A single SQLCipher-encrypted
// SQLite file holds identity records, sessions, profiles, and notes.

// Schema contains all DDL statements, applied idempotently on open.
const Schema = `
-- Users table: identity-provider records (email/password or Google OIDC)
CREATE TABLE IF NOT EXISTS users (
    user_id TEXT PRIMARY KEY,
    email TEXT UNIQUE NOT NULL,
    full_name TEXT NOT NULL DEFAULT '',
    password_hash TEXT,
    google_sub TEXT UNIQUE,
    created_at INTEGER NOT NULL
);

-- Sessions table: active user sessions
CREATE TABLE IF NOT EXISTS sessions (
    session_id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    expires_at INTEGER NOT NULL,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id);
CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at);

-- Profiles table: one application profile per user (tier, quota counter,
-- subscription reconciliation state)
CREATE TABLE IF NOT EXISTS profiles (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id TEXT UNIQUE NOT NULL,
    email TEXT NOT NULL,
    full_name TEXT NOT NULL,
    subscription_tier TEXT NOT NULL DEFAULT 'free',
    notes_count INTEGER NOT NULL DEFAULT 0 CHECK(notes_count >= 0),
    paypal_subscription_id TEXT,
    paypal_plan_id TEXT,
    subscription_status TEXT,
    subscription_end_date INTEGER,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

-- Notes table: per-user notes with JSON tag array and 1MB content limit
CREATE TABLE IF NOT EXISTS notes (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    title TEXT NOT NULL,
    content TEXT NOT NULL CHECK(length(content) <= 1048576),
    tags TEXT NOT NULL DEFAULT '[]',
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_notes_user_updated ON notes(user_id, updated_at DESC);
`
