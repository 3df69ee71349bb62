package backend

import (
	"math/big"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jackc/pgx/v5/pgtype"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestBackend_NormalizeValue(t *testing.T) {
	t.Parallel()

	oid := primitive.NewObjectID()
	ts := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

	tests := []struct {
		name string
		in   any
		want any
	}{
		{"nil", nil, nil},
		{"bytes", []byte("hola"), "hola"},
		{"uuid", [16]byte{0x12, 0x34, 0x56, 0x78, 0x9a, 0xbc, 0xde, 0xf0, 0x12, 0x34, 0x56, 0x78, 0x9a, 0xbc, 0xde, 0xf0}, "12345678-9abc-def0-1234-56789abcdef0"},
		{"numeric", pgtype.Numeric{Int: big.NewInt(1250), Exp: -2, Valid: true}, 12.5},
		{"invalid numeric", pgtype.Numeric{}, nil},
		{"int passthrough", int64(7), int64(7)},
		{"time", ts, ts},
		{"object id", oid, oid.Hex()},
		{"bson datetime", primitive.NewDateTimeFromTime(ts), ts},
		{"nested document", bson.M{"owner": bson.M{"_id": oid}, "tags": bson.A{"a", []byte("b")}}, map[string]any{
			"owner": map[string]any{"_id": oid.Hex()},
			"tags":  []any{"a", "b"},
		}},
		{"ordered document", primitive.D{{Key: "k", Value: []byte("v")}}, map[string]any{"k": "v"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if diff := cmp.Diff(tt.want, normalizeValue(tt.in)); diff != "" {
				t.Fatalf("unexpected value (-want +got):\n%s", diff)
			}
		})
	}
}
