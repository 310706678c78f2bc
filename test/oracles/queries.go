package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_one_agreement_per_source",
			SQL: `SELECT COALESCE(application_id, offer_id) AS source, COUNT(*) FROM agreements
                  GROUP BY COALESCE(application_id, offer_id) HAVING COUNT(*) > 1`,
		},
		{
			Name: "O2_status_column_matches_doc",
			SQL: `SELECT id, status, doc->>'status' FROM agreements
                  WHERE status <> doc->>'status' OR version <> (doc->>'version')::bigint`,
		},
		{
			Name: "O3_single_pending_request_per_kind",
			SQL: `SELECT id FROM agreements
                  WHERE (SELECT COUNT(*) FROM jsonb_array_elements(doc->'modificationRequests') r
                         WHERE r->>'status' = 'pending') > 1
                     OR (SELECT COUNT(*) FROM jsonb_array_elements(doc->'terminationRequests') r
                         WHERE r->>'status' = 'pending') > 1`,
		},
		{
			Name: "O4_status_reflects_pending_requests",
			SQL: `WITH p AS (
                      SELECT id, status,
                             EXISTS (SELECT 1 FROM jsonb_array_elements(doc->'modificationRequests') r
                                     WHERE r->>'status' = 'pending') AS mod,
                             EXISTS (SELECT 1 FROM jsonb_array_elements(doc->'terminationRequests') r
                                     WHERE r->>'status' = 'pending') AS term
                      FROM agreements)
                  SELECT id, status, mod, term FROM p
                  WHERE (status = 'termination_pending' AND NOT term)
                     OR (status = 'modification_pending' AND (term OR NOT mod))
                     OR (status IN ('active', 'pending_worker_acceptance', 'rejected', 'withdrawn',
                                    'terminated', 'completed') AND (mod OR term))`,
		},
		{
			Name: "O5_approved_work_paid_once",
			SQL: `SELECT a.id, wl->>'id' AS work_log,
                         (SELECT COUNT(*) FROM jsonb_array_elements(a.doc->'payments') p
                          WHERE p->>'workLogId' = wl->>'id') AS payments
                  FROM agreements a, jsonb_array_elements(a.doc->'workLogs') wl
                  WHERE (wl->>'status' = 'approved') <>
                        ((SELECT COUNT(*) FROM jsonb_array_elements(a.doc->'payments') p
                          WHERE p->>'workLogId' = wl->>'id') = 1)
                     OR (SELECT COUNT(*) FROM jsonb_array_elements(a.doc->'payments') p
                         WHERE p->>'workLogId' = wl->>'id') > 1`,
		},
		{
			Name: "O6_payment_matches_work_log",
			SQL: `SELECT a.id, p->>'id' AS payment FROM agreements a
                  CROSS JOIN jsonb_array_elements(a.doc->'payments') p
                  LEFT JOIN LATERAL (
                      SELECT wl FROM jsonb_array_elements(a.doc->'workLogs') wl
                      WHERE wl->>'id' = p->>'workLogId') w ON true
                  WHERE w.wl IS NULL
                     OR w.wl->>'paymentId' IS DISTINCT FROM p->>'id'
                     OR (w.wl->>'amount')::numeric <> (p->>'amount')::numeric
                     OR (p->>'amount')::numeric < 0`,
		},
		{
			Name: "O7_terminal_timestamps",
			SQL: `SELECT id, status FROM agreements
                  WHERE (status = 'terminated' AND doc->>'terminatedAt' IS NULL)
                     OR (status = 'completed' AND doc->>'completedAt' IS NULL)
                     OR (status = 'withdrawn' AND doc->>'withdrawnAt' IS NULL)
                     OR (status IN ('active', 'modification_pending', 'termination_pending', 'terminated', 'completed')
                         AND doc->>'acceptedAt' IS NULL)`,
		},
		{
			Name: "O8_marked_sources_point_at_agreements",
			SQL: `SELECT 'application' AS kind, s.id::text, s.agreement_id FROM applications s
                  LEFT JOIN agreements a ON a.id = s.agreement_id AND a.application_id = s.id::text
                  WHERE s.status = 'agreement_created' AND a.id IS NULL
                  UNION ALL
                  SELECT 'offer', s.id::text, s.agreement_id FROM offers s
                  LEFT JOIN agreements a ON a.id = s.agreement_id AND a.offer_id = s.id::text
                  WHERE s.status = 'agreement_created' AND a.id IS NULL`,
		},
		{
			Name: "O9_work_log_ids_unique",
			SQL: `SELECT wl->>'id', COUNT(*) FROM agreements, jsonb_array_elements(doc->'workLogs') wl
                  GROUP BY wl->>'id' HAVING COUNT(*) > 1`,
		},
		{
			Name: "O10_outbox_order",
			SQL:  `SELECT id, created_at, delivered_at FROM outbox WHERE delivered_at < created_at`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
