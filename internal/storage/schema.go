package storage

const schema = `
-- Curriculum hierarchy: grade -> subject -> term -> unit -> flashcard.
CREATE TABLE IF NOT EXISTS grades (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE,
    description TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS subjects (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    grade_id INTEGER NOT NULL REFERENCES grades(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    code TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    UNIQUE(grade_id, name)
);

CREATE TABLE IF NOT EXISTS terms (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    subject_id INTEGER NOT NULL REFERENCES subjects(id) ON DELETE CASCADE,
    term_number INTEGER NOT NULL,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    UNIQUE(subject_id, term_number)
);

CREATE TABLE IF NOT EXISTS units (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    term_id INTEGER NOT NULL REFERENCES terms(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    order_index INTEGER NOT NULL DEFAULT 0,
    UNIQUE(term_id, name)
);

-- The 'sources' table tracks where decks come from, either a local directory or a git repository.
CREATE TABLE IF NOT EXISTS sources (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    path TEXT NOT NULL UNIQUE,
    type TEXT NOT NULL DEFAULT 'local',
    last_scanned DATETIME
);

-- Flashcards are immutable; a content change produces a new fingerprint and a new row.
CREATE TABLE IF NOT EXISTS flashcards (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    unit_id INTEGER NOT NULL REFERENCES units(id) ON DELETE CASCADE,
    type TEXT NOT NULL DEFAULT 'SELF_EVAL',
    question TEXT NOT NULL,
    answer TEXT NOT NULL DEFAULT '',
    explanation TEXT NOT NULL DEFAULT '',
    difficulty TEXT NOT NULL DEFAULT 'MEDIUM',
    order_index INTEGER NOT NULL DEFAULT 0,
    fingerprint TEXT NOT NULL,
    source_id INTEGER REFERENCES sources(id) ON DELETE SET NULL,
    UNIQUE(unit_id, fingerprint)
);

CREATE TABLE IF NOT EXISTS quiz_options (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    flashcard_id INTEGER NOT NULL REFERENCES flashcards(id) ON DELETE CASCADE,
    option_text TEXT NOT NULL,
    option_letter TEXT NOT NULL,
    is_correct BOOLEAN NOT NULL DEFAULT 0,
    order_index INTEGER NOT NULL DEFAULT 0,
    UNIQUE(flashcard_id, option_letter)
);

CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    language TEXT NOT NULL DEFAULT 'en',
    grade_id INTEGER REFERENCES grades(id) ON DELETE SET NULL,
    preferred_subject_id INTEGER REFERENCES subjects(id) ON DELETE SET NULL,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL,
    last_login DATETIME
);

-- One row per (user, flashcard); upserted on every review.
CREATE TABLE IF NOT EXISTS user_progress (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    flashcard_id INTEGER NOT NULL REFERENCES flashcards(id) ON DELETE CASCADE,
    total_reviews INTEGER NOT NULL DEFAULT 0,
    correct_reviews INTEGER NOT NULL DEFAULT 0,
    incorrect_reviews INTEGER NOT NULL DEFAULT 0,
    ease_factor REAL NOT NULL DEFAULT 2.5,
    interval_days INTEGER NOT NULL DEFAULT 1,
    repetitions INTEGER NOT NULL DEFAULT 0,
    next_review_date DATETIME NOT NULL,
    last_reviewed_at DATETIME NOT NULL,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL,
    UNIQUE(user_id, flashcard_id)
);

-- Append-only. Rows outlive the flashcards they reference.
CREATE TABLE IF NOT EXISTS quiz_responses (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    flashcard_id INTEGER NOT NULL,
    selected_option_id INTEGER,
    response TEXT NOT NULL,
    time_taken_ms INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_flashcards_unit ON flashcards(unit_id, order_index);
CREATE INDEX IF NOT EXISTS idx_progress_user ON user_progress(user_id, next_review_date);
CREATE INDEX IF NOT EXISTS idx_responses_user ON quiz_responses(user_id, created_at);
`
