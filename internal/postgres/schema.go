package postgres

// schema is the full DDL for the JSON-snapshot storage design: one table
// per aggregate with a jsonb data column, plus the outbox_events and
// invoice_sequences tables that keep real columns because the dispatcher
// and the numberer filter/increment on them constantly. Applied by
// cmd/migrate; idempotent via IF NOT EXISTS so re-running it is safe.
const schema = `
CREATE TABLE IF NOT EXISTS customers (
	tenant_id      text NOT NULL,
	id             text NOT NULL,
	balance_cents  bigint NOT NULL DEFAULT 0,
	data           jsonb NOT NULL,
	updated_at     timestamptz NOT NULL DEFAULT now(),
	PRIMARY KEY (tenant_id, id)
);

CREATE TABLE IF NOT EXISTS plans (
	tenant_id  text NOT NULL,
	id         text NOT NULL,
	data       jsonb NOT NULL,
	updated_at timestamptz NOT NULL DEFAULT now(),
	PRIMARY KEY (tenant_id, id)
);

CREATE TABLE IF NOT EXISTS plan_versions (
	tenant_id  text NOT NULL,
	id         text NOT NULL,
	data       jsonb NOT NULL,
	updated_at timestamptz NOT NULL DEFAULT now(),
	PRIMARY KEY (tenant_id, id)
);
CREATE INDEX IF NOT EXISTS idx_plan_versions_plan_id ON plan_versions ((data->>'PlanID'));

CREATE TABLE IF NOT EXISTS meters (
	tenant_id  text NOT NULL,
	id         text NOT NULL,
	data       jsonb NOT NULL,
	updated_at timestamptz NOT NULL DEFAULT now(),
	PRIMARY KEY (tenant_id, id)
);
CREATE INDEX IF NOT EXISTS idx_meters_code ON meters ((data->>'Code'));

CREATE TABLE IF NOT EXISTS subscriptions (
	tenant_id  text NOT NULL,
	id         text NOT NULL,
	data       jsonb NOT NULL,
	updated_at timestamptz NOT NULL DEFAULT now(),
	PRIMARY KEY (tenant_id, id)
);
CREATE INDEX IF NOT EXISTS idx_subscriptions_customer_id ON subscriptions ((data->>'CustomerID'));
CREATE INDEX IF NOT EXISTS idx_subscriptions_next_cycle ON subscriptions ((data->>'NextCycleAction'), (data->>'CurrentPeriodEnd'));

CREATE TABLE IF NOT EXISTS checkout_sessions (
	tenant_id  text NOT NULL,
	id         text NOT NULL,
	data       jsonb NOT NULL,
	updated_at timestamptz NOT NULL DEFAULT now(),
	PRIMARY KEY (tenant_id, id)
);
CREATE INDEX IF NOT EXISTS idx_checkout_sessions_status_expiry ON checkout_sessions ((data->>'Status'), (data->>'ExpiresAt'));

CREATE TABLE IF NOT EXISTS invoices (
	tenant_id  text NOT NULL,
	id         text NOT NULL,
	data       jsonb NOT NULL,
	updated_at timestamptz NOT NULL DEFAULT now(),
	PRIMARY KEY (tenant_id, id)
);
CREATE INDEX IF NOT EXISTS idx_invoices_subscription_status ON invoices ((data->>'SubscriptionID'), (data->>'Status'));

CREATE TABLE IF NOT EXISTS coupons (
	tenant_id  text NOT NULL,
	id         text NOT NULL,
	data       jsonb NOT NULL,
	updated_at timestamptz NOT NULL DEFAULT now(),
	PRIMARY KEY (tenant_id, id)
);

CREATE TABLE IF NOT EXISTS applied_coupons (
	tenant_id  text NOT NULL,
	id         text NOT NULL,
	data       jsonb NOT NULL,
	updated_at timestamptz NOT NULL DEFAULT now(),
	PRIMARY KEY (tenant_id, id)
);
CREATE INDEX IF NOT EXISTS idx_applied_coupons_subscription_id ON applied_coupons ((data->>'SubscriptionID'));
CREATE INDEX IF NOT EXISTS idx_applied_coupons_coupon_id ON applied_coupons ((data->>'CouponID'));

CREATE TABLE IF NOT EXISTS slot_transactions (
	tenant_id  text NOT NULL,
	id         text NOT NULL,
	data       jsonb NOT NULL,
	updated_at timestamptz NOT NULL DEFAULT now(),
	PRIMARY KEY (tenant_id, id)
);
CREATE INDEX IF NOT EXISTS idx_slot_transactions_component ON slot_transactions ((data->>'SubscriptionID'), (data->>'ComponentID'));
CREATE INDEX IF NOT EXISTS idx_slot_transactions_invoice_status ON slot_transactions ((data->>'InvoiceID'), (data->>'Status'));

CREATE TABLE IF NOT EXISTS payment_transactions (
	tenant_id  text NOT NULL,
	id         text NOT NULL,
	data       jsonb NOT NULL,
	updated_at timestamptz NOT NULL DEFAULT now(),
	PRIMARY KEY (tenant_id, id)
);
CREATE INDEX IF NOT EXISTS idx_payment_transactions_invoice_ids ON payment_transactions USING gin ((data->'InvoiceIDs'));

CREATE TABLE IF NOT EXISTS tax_rates (
	tenant_id  text NOT NULL,
	id         text NOT NULL,
	data       jsonb NOT NULL,
	updated_at timestamptz NOT NULL DEFAULT now(),
	PRIMARY KEY (tenant_id, id)
);
CREATE INDEX IF NOT EXISTS idx_tax_rates_country ON tax_rates ((data->>'Country'));

CREATE TABLE IF NOT EXISTS outbox_events (
	id             text PRIMARY KEY,
	tenant_id      text NOT NULL,
	environment_id text NOT NULL,
	topic          text NOT NULL,
	aggregate_id   text NOT NULL,
	payload        bytea NOT NULL,
	created_at     timestamptz NOT NULL DEFAULT now(),
	dispatched_at  timestamptz,
	attempts       int NOT NULL DEFAULT 0,
	last_error     text
);
CREATE INDEX IF NOT EXISTS idx_outbox_events_undispatched ON outbox_events (created_at) WHERE dispatched_at IS NULL;

CREATE TABLE IF NOT EXISTS invoice_sequences (
	tenant_id           text NOT NULL,
	invoicing_entity_id text NOT NULL,
	year_month          text NOT NULL,
	last_value          bigint NOT NULL DEFAULT 0,
	updated_at          timestamptz NOT NULL DEFAULT now(),
	PRIMARY KEY (tenant_id, invoicing_entity_id, year_month)
);
`

// Migrate applies schema against db. It is idempotent.
func Migrate(db *DB) error {
	_, err := db.Exec(schema)
	return err
}

// SchemaSQL returns the raw DDL, for -dry-run printing.
func SchemaSQL() string {
	return schema
}
