package postgres

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"repairhub/internal/domain/checkpoint"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestTableName(t *testing.T) {
	if got := TableName("checkpoint-store"); got != "checkpoint_store" {
		t.Errorf("expected checkpoint_store, got %s", got)
	}
	if got := TableName(""); got != "checkpoint_store" {
		t.Errorf("expected default container, got %s", got)
	}
}

func TestNewCheckpointStore_RejectsUnsafeNames(t *testing.T) {
	if _, err := NewCheckpointStore(&fakeDB{}, "cp; DROP TABLE x", "g", "t"); err == nil {
		t.Fatal("expected invalid container error")
	}
}

func TestCheckpointStore_WritePosition_IsMonotonic(t *testing.T) {
	db := &fakeDB{}
	store, err := NewCheckpointStore(db, "checkpoint-store", "$Default", "repair-reports")
	if err != nil {
		t.Fatalf("NewCheckpointStore() error = %v", err)
	}

	if err := store.WritePosition(context.Background(), checkpoint.Checkpoint{Partition: "0", Offset: 11}); err != nil {
		t.Fatalf("WritePosition() error = %v", err)
	}
	if !strings.Contains(db.lastSQL, "checkpoint_store.position < EXCLUDED.position") {
		t.Errorf("expected monotonic guard, got %s", db.lastSQL)
	}
	if db.lastArgs[2] != "0" || db.lastArgs[3] != int64(11) {
		t.Errorf("unexpected args %v", db.lastArgs)
	}
	if ts, ok := db.lastArgs[4].(time.Time); !ok || ts.IsZero() {
		t.Errorf("expected updated_at to be filled, got %v", db.lastArgs[4])
	}
}

func TestCheckpointStore_ReadPosition_Absent(t *testing.T) {
	store, _ := NewCheckpointStore(&fakeDB{}, "", "g", "t")

	cp, err := store.ReadPosition(context.Background(), "3")
	if err != nil {
		t.Fatalf("ReadPosition() error = %v", err)
	}
	if cp != nil {
		t.Fatalf("expected nil checkpoint, got %+v", cp)
	}
}

func TestCheckpointStore_ReadPosition_Found(t *testing.T) {
	now := time.Now().UTC()
	db := &fakeDB{QueryRowFn: func(context.Context, string, ...any) pgx.Row {
		return fakeRow{scan: func(dest ...any) error {
			*dest[0].(*int64) = 41
			*dest[1].(*time.Time) = now
			return nil
		}}
	}}
	store, _ := NewCheckpointStore(db, "", "g", "t")

	cp, err := store.ReadPosition(context.Background(), "3")
	if err != nil {
		t.Fatalf("ReadPosition() error = %v", err)
	}
	if cp == nil || cp.Offset != 41 || cp.Next() != 42 || cp.Partition != "3" {
		t.Fatalf("unexpected checkpoint %+v", cp)
	}
}

func TestCheckpointStore_Leases(t *testing.T) {
	var affected string
	db := &fakeDB{ExecFn: func(context.Context, string, ...any) (pgconn.CommandTag, error) {
		return pgconn.NewCommandTag(affected), nil
	}}
	store, _ := NewCheckpointStore(db, "", "g", "t")
	ctx := context.Background()

	affected = "INSERT 0 1"
	ok, err := store.Acquire(ctx, "0", "worker-a", 30*time.Second)
	if err != nil || !ok {
		t.Fatalf("expected lease acquired, got %v, %v", ok, err)
	}
	if db.lastArgs[4] != "30000 milliseconds" {
		t.Errorf("unexpected interval arg %v", db.lastArgs[4])
	}

	affected = "INSERT 0 0"
	ok, err = store.Acquire(ctx, "0", "worker-b", 30*time.Second)
	if err != nil || ok {
		t.Fatalf("expected lease held elsewhere, got %v, %v", ok, err)
	}

	affected = "UPDATE 0"
	if err := store.Renew(ctx, "0", "worker-b", time.Second); !errors.Is(err, checkpoint.ErrLeaseLost) {
		t.Fatalf("expected ErrLeaseLost, got %v", err)
	}
}
