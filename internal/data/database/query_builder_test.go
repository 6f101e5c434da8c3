package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildListQuery(t *testing.T) {
	tests := []struct {
		name      string
		opts      *ListQueryOptions
		wantQuery string
		wantArgs  []any
	}{
		{
			name:      "basic select",
			opts:      NewListQueryOptions("predictions"),
			wantQuery: `SELECT * FROM "predictions"`,
		},
		{
			name:      "columns",
			opts:      NewListQueryOptions("predictions", WithColumns("job_id", "p.status")),
			wantQuery: `SELECT "job_id", "p"."status" FROM "predictions"`,
		},
		{
			name: "conditions with dollar placeholders",
			opts: NewListQueryOptions("predictions",
				WithCondition(WhereCond("submitted_by", Equal, "alice")),
				WithCondition(WhereCond("finished_at", LessThan, 5)),
				WithOrderBy("finished_at", "desc"),
				WithLimit(10),
				WithOffset(20),
			),
			wantQuery: `SELECT * FROM "predictions" WHERE "submitted_by" = $1 AND "finished_at" < $2 ` +
				`ORDER BY "finished_at" DESC LIMIT $3 OFFSET $4`,
			wantArgs: []any{"alice", 5, 10, 20},
		},
		{
			name: "question placeholders",
			opts: NewListQueryOptions("predictions",
				WithPlaceholder(Question),
				WithCondition(WhereCond("submitted_by", Equal, "bob")),
				WithLimit(5),
			),
			wantQuery: `SELECT * FROM "predictions" WHERE "submitted_by" = ? LIMIT ?`,
			wantArgs:  []any{"bob", 5},
		},
		{
			name: "sqlite offset without limit",
			opts: NewListQueryOptions("predictions",
				WithPlaceholder(Question),
				WithOffset(3),
			),
			wantQuery: `SELECT * FROM "predictions" LIMIT -1 OFFSET ?`,
			wantArgs:  []any{3},
		},
		{
			name: "empty string filter skipped",
			opts: NewListQueryOptions("predictions",
				WithCondition(WhereCond("submitted_by", Equal, "")),
			),
			wantQuery: `SELECT * FROM "predictions"`,
		},
		{
			name: "count only ignores order and paging",
			opts: NewListQueryOptions("predictions",
				WithCountOnly(),
				WithCondition(WhereCond("status", Equal, "failed")),
				WithOrderBy("finished_at", "DESC"),
				WithLimit(1),
			),
			wantQuery: `SELECT COUNT(*) FROM "predictions" WHERE "status" = $1`,
			wantArgs:  []any{"failed"},
		},
		{
			name: "injection in identifiers is quoted",
			opts: NewListQueryOptions(`predictions"; DROP TABLE x; --`,
				WithOrderBy("finished_at", "sideways"),
			),
			wantQuery: `SELECT * FROM "predictions""; DROP TABLE x; --" ORDER BY "finished_at"`,
		},
		{
			name: "unknown condition type dropped",
			opts: NewListQueryOptions("predictions",
				WithCondition(WhereCond("status", ConditionType("LIKE"), "x")),
			),
			wantQuery: `SELECT * FROM "predictions"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, args := BuildListQuery(tt.opts)
			assert.Equal(t, tt.wantQuery, query)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestBuildListQuery_Nil(t *testing.T) {
	query, args := BuildListQuery(nil)
	assert.Empty(t, query)
	assert.Nil(t, args)
}
