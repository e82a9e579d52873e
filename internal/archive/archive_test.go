package archive

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/unbuiltapp/unbuilt/internal/database"
	"github.com/unbuiltapp/unbuilt/internal/store"
)

type fakeS3 struct {
	puts     []s3.PutObjectInput
	failures int
}

func (f *fakeS3) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("transient upload error")
	}
	f.puts = append(f.puts, *input)
	return &s3.PutObjectOutput{}, nil
}

func setupArchiveTest(t *testing.T) (*store.UserStore, *store.ArchiveStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return store.NewUserStore(db), store.NewArchiveStore(db)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStoreUploadsAndRecords(t *testing.T) {
	users, archives := setupArchiveTest(t)
	u, err := users.Create("alice@example.com", nil, "Alice")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	fake := &fakeS3{}
	m := &Manager{cfg: Config{Bucket: "exports"}, client: fake, archives: archives, logger: discardLogger()}

	record, err := m.Store(context.Background(), u.ID, "csv", "unbuilt-csv-abc123.csv", []byte("data"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if record == nil {
		t.Fatal("expected an archive record")
	}
	if len(fake.puts) != 1 {
		t.Fatalf("got %d uploads, want 1", len(fake.puts))
	}
	if got, want := *fake.puts[0].Bucket, "exports"; got != want {
		t.Errorf("bucket = %q, want %q", got, want)
	}

	list, err := archives.ListByUser(u.ID)
	if err != nil {
		t.Fatalf("list archives: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("got %d records, want 1", len(list))
	}
	if list[0].Filename != "unbuilt-csv-abc123.csv" {
		t.Errorf("filename = %q", list[0].Filename)
	}
	if list[0].SizeBytes != 4 {
		t.Errorf("size = %d, want 4", list[0].SizeBytes)
	}
}

func TestStoreRetriesTransientFailures(t *testing.T) {
	users, archives := setupArchiveTest(t)
	u, err := users.Create("alice@example.com", nil, "Alice")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	fake := &fakeS3{failures: 2}
	m := &Manager{cfg: Config{Bucket: "exports"}, client: fake, archives: archives, logger: discardLogger()}

	if _, err := m.Store(context.Background(), u.ID, "csv", "f.csv", []byte("x")); err != nil {
		t.Fatalf("store after retries: %v", err)
	}
	if len(fake.puts) != 1 {
		t.Errorf("got %d successful uploads, want 1", len(fake.puts))
	}
}

func TestStoreDisabledIsNoOp(t *testing.T) {
	_, archives := setupArchiveTest(t)

	m := NewManager(Config{}, archives, discardLogger())
	if m.Enabled() {
		t.Error("manager without credentials should be disabled")
	}

	record, err := m.Store(context.Background(), 1, "csv", "f.csv", []byte("x"))
	if err != nil {
		t.Fatalf("disabled store: %v", err)
	}
	if record != nil {
		t.Error("disabled store should return no record")
	}
}

func TestConfigEnabled(t *testing.T) {
	if (Config{}).Enabled() {
		t.Error("empty config should not be enabled")
	}
	full := Config{Bucket: "b", AccessKey: "k", SecretKey: "s"}
	if !full.Enabled() {
		t.Error("complete config should be enabled")
	}
}
