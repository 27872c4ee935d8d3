// =============================
// File: internal/store/postgres/schema.go
// =============================
package postgres

const schema = `
CREATE TABLE IF NOT EXISTS pools (
	address       TEXT PRIMARY KEY,
	mint          TEXT NOT NULL UNIQUE,
	bump          SMALLINT NOT NULL,
	reserve_token BIGINT NOT NULL DEFAULT 0,
	reserve_base  BIGINT NOT NULL DEFAULT 0,
	phase         SMALLINT NOT NULL DEFAULT 0,
	lp_supply     BIGINT NOT NULL DEFAULT 0,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
	pool   TEXT NOT NULL REFERENCES pools(address) ON DELETE CASCADE,
	owner  TEXT NOT NULL,
	shares BIGINT NOT NULL,
	PRIMARY KEY (pool, owner)
);

CREATE TABLE IF NOT EXISTS balances (
	owner  TEXT NOT NULL,
	asset  TEXT NOT NULL,
	amount BIGINT NOT NULL CHECK (amount >= 0),
	PRIMARY KEY (owner, asset)
);
`
