package sequence_repo

import (
	"strings"
	"testing"
	"time"

	appctx "docseq/internal/core/context"
	"docseq/internal/core/id"
	"docseq/internal/domain/sequence"
)

var (
	seqID   = id.MustParse("01890a5d-ac96-774b-bcce-b302099a8057")
	rangeID = id.MustParse("01890a5d-ac96-774b-bcce-b302099a8058")
	orgA    = id.MustParse("01890a5d-ac96-774b-bcce-b302099a8059")
	orgB    = id.MustParse("01890a5d-ac96-774b-bcce-b302099a805a")
)

const rangeColumns = "id, sequence_id, date_from, date_to, number_next"

func newTestRepo() *SequenceRepo {
	return NewSequenceRepo(nil)
}

func assertSQL(t *testing.T, got, want string) {
	t.Helper()
	if got != want {
		t.Errorf("SQL mismatch\nwant: %s\ngot:  %s", want, got)
	}
}

func TestFindByCodeQuery(t *testing.T) {
	repo := newTestRepo()
	cols := strings.Join(repo.seqCols, ", ")

	tests := []struct {
		name     string
		orgIDs   []id.ID
		wantSQL  string
		wantArgs int
	}{
		{
			name:   "visible organizations",
			orgIDs: []id.ID{orgA, orgB},
			wantSQL: "SELECT " + cols + " FROM sequences WHERE code = $1 AND active = $2 " +
				"AND (organization_id IS NULL OR organization_id IN ($3,$4)) ORDER BY name, id",
			wantArgs: 4,
		},
		{
			name:   "no organization visible",
			orgIDs: nil,
			wantSQL: "SELECT " + cols + " FROM sequences WHERE code = $1 AND active = $2 " +
				"AND (organization_id IS NULL OR (1=0)) ORDER BY name, id",
			wantArgs: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := repo.findByCodeQuery("INV", tt.orgIDs).ToSql()
			if err != nil {
				t.Fatalf("ToSql failed: %v", err)
			}
			assertSQL(t, sql, tt.wantSQL)
			if len(args) != tt.wantArgs {
				t.Fatalf("Args count mismatch\nwant: %d\ngot:  %d", tt.wantArgs, len(args))
			}
			if args[0] != "INV" {
				t.Errorf("Args mismatch\nwant: INV\ngot:  %v", args[0])
			}
		})
	}
}

func TestFindDateRangeQuery(t *testing.T) {
	repo := newTestRepo()
	at := time.Date(2024, 3, 15, 17, 30, 0, 0, time.UTC)

	sql, args, err := repo.findDateRangeQuery(seqID, at).ToSql()
	if err != nil {
		t.Fatalf("ToSql failed: %v", err)
	}

	assertSQL(t, sql, "SELECT "+rangeColumns+" FROM sequence_date_ranges "+
		"WHERE sequence_id = $1 AND date_from <= $2 AND date_to >= $3 "+
		"ORDER BY date_from DESC LIMIT 1")

	if len(args) != 3 {
		t.Fatalf("Args count mismatch\nwant: 3\ngot:  %d", len(args))
	}
	day := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	if args[1] != day || args[2] != day {
		t.Errorf("day not truncated to midnight: %v, %v", args[1], args[2])
	}
}

func TestLockNumberNextQuery(t *testing.T) {
	repo := newTestRepo()

	tests := []struct {
		name    string
		key     sequence.CounterKey
		mode    sequence.LockMode
		wantSQL string
	}{
		{
			name:    "sequence wait",
			key:     sequence.SequenceKey(seqID),
			mode:    sequence.LockWait,
			wantSQL: "SELECT number_next FROM sequences WHERE id = $1 FOR NO KEY UPDATE",
		},
		{
			name:    "sequence nowait",
			key:     sequence.SequenceKey(seqID),
			mode:    sequence.LockNoWait,
			wantSQL: "SELECT number_next FROM sequences WHERE id = $1 FOR NO KEY UPDATE NOWAIT",
		},
		{
			name:    "date range nowait",
			key:     sequence.DateRangeKey(seqID, rangeID),
			mode:    sequence.LockNoWait,
			wantSQL: "SELECT number_next FROM sequence_date_ranges WHERE id = $1 FOR NO KEY UPDATE NOWAIT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := repo.lockNumberNextQuery(tt.key, tt.mode).ToSql()
			if err != nil {
				t.Fatalf("ToSql failed: %v", err)
			}
			assertSQL(t, sql, tt.wantSQL)
			if len(args) != 1 {
				t.Fatalf("Args count mismatch\nwant: 1\ngot:  %d", len(args))
			}
		})
	}
}

func TestLockSharedQuery(t *testing.T) {
	repo := newTestRepo()

	sql, args, err := repo.lockSharedQuery(seqID).ToSql()
	if err != nil {
		t.Fatalf("ToSql failed: %v", err)
	}
	if !strings.HasPrefix(sql, "SELECT ") || !strings.Contains(sql, "implementation") {
		t.Errorf("lock must read the full row, got: %s", sql)
	}
	if want := " FROM sequences WHERE id = $1 FOR KEY SHARE"; !strings.HasSuffix(sql, want) {
		t.Errorf("SQL mismatch\nwant suffix: %s\ngot:         %s", want, sql)
	}
	if len(args) != 1 || args[0] != seqID {
		t.Errorf("Args mismatch\nwant: [%v]\ngot:  %v", seqID, args)
	}
}

func TestIncrementQuery(t *testing.T) {
	repo := newTestRepo()

	sql, args, err := repo.incrementQuery(sequence.DateRangeKey(seqID, rangeID), 5).ToSql()
	if err != nil {
		t.Fatalf("ToSql failed: %v", err)
	}

	assertSQL(t, sql, "UPDATE sequence_date_ranges SET number_next = number_next + $1 WHERE id = $2")
	if len(args) != 2 {
		t.Fatalf("Args count mismatch\nwant: 2\ngot:  %d", len(args))
	}
	if args[0] != int64(5) {
		t.Errorf("Args mismatch\nwant: 5\ngot:  %v", args[0])
	}
	if args[1] != rangeID.String() {
		t.Errorf("Args mismatch\nwant: %s\ngot:  %v", rangeID, args[1])
	}
}

func TestUpdateQuery_OptimisticLock(t *testing.T) {
	repo := newTestRepo()
	seq := sequence.NewSequence("Invoices", "INV")
	seq.ID = seqID
	seq.Version = 3

	sql, args, err := repo.updateQuery(seq).ToSql()
	if err != nil {
		t.Fatalf("ToSql failed: %v", err)
	}

	if !strings.HasPrefix(sql, "UPDATE sequences SET active = $1, code = $2") {
		t.Errorf("unexpected SET clause: %s", sql)
	}
	if !strings.Contains(sql, "version = version + 1 WHERE id = $13 AND version = $14") {
		t.Errorf("missing version guard: %s", sql)
	}
	for _, immutable := range []string{"SET id", ", id =", "created_at"} {
		if strings.Contains(sql, immutable) {
			t.Errorf("immutable column %q must not be updated: %s", immutable, sql)
		}
	}
	if len(args) != 14 {
		t.Fatalf("Args count mismatch\nwant: 14\ngot:  %d", len(args))
	}
	if args[13] != 3 {
		t.Errorf("version arg mismatch\nwant: 3\ngot:  %v", args[13])
	}
}

func TestCounterName(t *testing.T) {
	seqName := CounterName(sequence.SequenceKey(seqID))
	if seqName != "seq_01890a5dac96774bbcceb302099a8057" {
		t.Errorf("sequence counter name: %s", seqName)
	}

	rangeName := CounterName(sequence.DateRangeKey(seqID, rangeID))
	if rangeName != "seq_dr_01890a5dac96774bbcceb302099a8058" {
		t.Errorf("date range counter name: %s", rangeName)
	}
	if len(rangeName) > 63 {
		t.Errorf("name exceeds identifier limit: %d", len(rangeName))
	}
}

func TestCounterDDL(t *testing.T) {
	key := sequence.SequenceKey(seqID)
	name := `"seq_01890a5dac96774bbcceb302099a8057"`

	assertSQL(t, createCounterSQL(key, 2, 10),
		"CREATE SEQUENCE "+name+" INCREMENT BY 2 MINVALUE -9223372036854775808 "+
			"MAXVALUE 9223372036854775807 START WITH 10")

	assertSQL(t, dropCountersSQL([]sequence.CounterKey{key, sequence.DateRangeKey(seqID, rangeID)}),
		"DROP SEQUENCE IF EXISTS "+name+`, "seq_dr_01890a5dac96774bbcceb302099a8058" RESTRICT`)

	inc, restart := int64(-1), int64(100)
	assertSQL(t, alterCounterSQL(key, sequence.CounterChange{Increment: &inc}),
		"ALTER SEQUENCE "+name+" INCREMENT BY -1")
	assertSQL(t, alterCounterSQL(key, sequence.CounterChange{Increment: &inc, Restart: &restart}),
		"ALTER SEQUENCE "+name+" INCREMENT BY -1 RESTART WITH 100")
}

func TestPredictNext(t *testing.T) {
	tests := []struct {
		name      string
		lastValue int64
		isCalled  bool
		increment int64
		want      int64
	}{
		{"fresh counter", 7, false, 3, 7},
		{"used counter", 7, true, 3, 10},
		{"descending", 7, true, -2, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := predictNext(tt.lastValue, tt.isCalled, tt.increment); got != tt.want {
				t.Errorf("predictNext = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestVisibleQuery(t *testing.T) {
	repo := NewOrganizationRepo(nil)

	tests := []struct {
		name     string
		user     *appctx.UserContext
		wantOK   bool
		wantSQL  string
		wantArgs int
	}{
		{
			name:    "anonymous sees all",
			user:    nil,
			wantOK:  true,
			wantSQL: "SELECT id FROM organizations ORDER BY id",
		},
		{
			name:    "admin sees all",
			user:    &appctx.UserContext{UserID: "u1", IsAdmin: true},
			wantOK:  true,
			wantSQL: "SELECT id FROM organizations ORDER BY id",
		},
		{
			name:     "current and allowed organizations",
			user:     &appctx.UserContext{UserID: "u1", OrgID: orgA.String(), OrgIDs: []string{orgB.String(), "junk"}},
			wantOK:   true,
			wantSQL:  "SELECT id FROM organizations WHERE id IN ($1,$2) ORDER BY id",
			wantArgs: 2,
		},
		{
			name:   "no organizations",
			user:   &appctx.UserContext{UserID: "u1"},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, ok := repo.visibleQuery(tt.user)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			sql, args, err := q.ToSql()
			if err != nil {
				t.Fatalf("ToSql failed: %v", err)
			}
			assertSQL(t, sql, tt.wantSQL)
			if len(args) != tt.wantArgs {
				t.Errorf("Args count mismatch\nwant: %d\ngot:  %d", tt.wantArgs, len(args))
			}
		})
	}
}
