package postgres

// schema is applied on every connect. All statements are idempotent.
// Unique constraints carry explicit names because conflict mapping
// inspects pq.Error.Constraint.
const schema = `
CREATE TABLE IF NOT EXISTS authors (
	id         BIGSERIAL PRIMARY KEY,
	name       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS books (
	id               BIGSERIAL PRIMARY KEY,
	title            TEXT NOT NULL,
	publication_year INTEGER NOT NULL,
	author_id        BIGINT NOT NULL REFERENCES authors(id) ON DELETE CASCADE,
	isbn             TEXT NOT NULL DEFAULT '',
	description      TEXT NOT NULL DEFAULT '',
	cover_url        TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL,
	CONSTRAINT books_title_author_key UNIQUE (title, author_id)
);

CREATE INDEX IF NOT EXISTS idx_books_author_id ON books(author_id);
CREATE INDEX IF NOT EXISTS idx_books_publication_year ON books(publication_year);

CREATE TABLE IF NOT EXISTS users (
	id            BIGSERIAL PRIMARY KEY,
	username      TEXT NOT NULL,
	email         TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	role          TEXT NOT NULL DEFAULT 'member',
	created_at    TIMESTAMPTZ NOT NULL,
	CONSTRAINT users_username_key UNIQUE (username),
	CONSTRAINT users_email_key UNIQUE (email)
);

CREATE TABLE IF NOT EXISTS posts (
	id             BIGSERIAL PRIMARY KEY,
	title          TEXT NOT NULL,
	content        TEXT NOT NULL,
	author_id      BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	published_date TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_posts_author_id ON posts(author_id);

CREATE TABLE IF NOT EXISTS comments (
	id         BIGSERIAL PRIMARY KEY,
	post_id    BIGINT NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
	author_id  BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	content    TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_comments_post_id ON comments(post_id);

CREATE TABLE IF NOT EXISTS libraries (
	id         BIGSERIAL PRIMARY KEY,
	name       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS library_books (
	library_id BIGINT NOT NULL REFERENCES libraries(id) ON DELETE CASCADE,
	book_id    BIGINT NOT NULL REFERENCES books(id) ON DELETE CASCADE,
	PRIMARY KEY (library_id, book_id)
);

CREATE TABLE IF NOT EXISTS librarians (
	id         BIGSERIAL PRIMARY KEY,
	user_id    BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	library_id BIGINT NOT NULL REFERENCES libraries(id) ON DELETE CASCADE,
	CONSTRAINT librarians_library_key UNIQUE (library_id)
);

CREATE TABLE IF NOT EXISTS tokens (
	id           BIGSERIAL PRIMARY KEY,
	user_id      BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	name         TEXT NOT NULL DEFAULT '',
	prefix       TEXT NOT NULL,
	hash         TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	expires_at   TIMESTAMPTZ,
	last_used_at TIMESTAMPTZ,
	CONSTRAINT tokens_hash_key UNIQUE (hash)
);

CREATE INDEX IF NOT EXISTS idx_tokens_user_id ON tokens(user_id);
`
