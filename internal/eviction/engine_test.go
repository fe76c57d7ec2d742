package eviction_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/rcliao/memtier/internal/archive"
	"github.com/rcliao/memtier/internal/eviction"
	"github.com/rcliao/memtier/internal/model"
	"github.com/rcliao/memtier/internal/scanner"
	"github.com/rcliao/memtier/internal/store"
)

const mb = 1024 * 1024

var now = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

func daysAgo(d int) time.Time {
	return now.Add(-time.Duration(d) * 24 * time.Hour)
}

// flakyArchive fails Append for the listed sessions.
type flakyArchive struct {
	*archive.Store
	fail map[string]bool
}

func (f *flakyArchive) Append(scope string, ym model.YearMonth, e model.ArchivedEntry) error {
	if f.fail[e.SessionID] {
		return errors.New("no space left on device")
	}
	return f.Store.Append(scope, ym, e)
}

// stickyLive fails Delete for the listed sessions.
type stickyLive struct {
	*store.FSStore
	fail map[string]bool
}

func (s *stickyLive) Delete(ref store.Ref) error {
	if s.fail[ref.SessionID] {
		return errors.New("permission denied")
	}
	return s.FSStore.Delete(ref)
}

var _ = Describe("Eviction engine", func() {
	var (
		root   string
		live   *store.FSStore
		arch   *archive.Store
		scan   *scanner.Scanner
		engine *eviction.Engine
	)

	BeforeEach(func() {
		root = GinkgoT().TempDir()
		var err error
		live, err = store.NewFSStore(root, nil)
		Expect(err).NotTo(HaveOccurred())
		arch = archive.New(root)
		scan = scanner.New(live, nil)
		engine = eviction.New(live, arch, scan, eviction.WithClock(func() time.Time { return now }))
	})

	put := func(scope, id string, size int, created, lastUsed time.Time) *model.Record {
		rec, err := live.Put(store.PutParams{
			Scope: scope, SessionID: id, Title: "title " + id,
			Content:   strings.Repeat("x", size),
			CreatedAt: created, LastUsed: lastUsed,
		})
		Expect(err).NotTo(HaveOccurred())
		return rec
	}

	scopeBytes := func(scope string) int64 {
		b, err := scan.ScopeBytes(scope)
		Expect(err).NotTo(HaveOccurred())
		return b
	}

	Describe("FindCandidates", func() {
		It("uses last use, not creation date", func() {
			put("music", "old-but-hot", 10, daysAgo(200), daysAgo(1))
			put("music", "new-but-cold", 10, daysAgo(5), daysAgo(95))

			set, err := engine.FindCandidates("music", 90)
			Expect(err).NotTo(HaveOccurred())
			Expect(set.Candidates).To(HaveLen(1))
			Expect(set.Candidates[0].SessionID).To(Equal("new-but-cold"))
			Expect(set.Candidates[0].DaysSinceLastUse).To(Equal(95))
		})

		It("counts whole elapsed days", func() {
			put("music", "almost", 10, daysAgo(100), daysAgo(90).Add(time.Minute))
			put("music", "exactly", 10, daysAgo(100), daysAgo(90))

			set, err := engine.FindCandidates("music", 90)
			Expect(err).NotTo(HaveOccurred())
			Expect(set.Candidates).To(HaveLen(1))
			Expect(set.Candidates[0].SessionID).To(Equal("exactly"))
		})

		It("excludes records with corrupt metadata and warns", func() {
			rec := put("music", "broken", 10, daysAgo(200), daysAgo(200))
			put("music", "fine", 10, daysAgo(200), daysAgo(200))
			dir := store.RecordDir(root, "music", rec.CreatedAt, "broken")
			Expect(os.WriteFile(filepath.Join(dir, store.MetadataFile), []byte("{oops"), 0o644)).To(Succeed())

			set, err := engine.FindCandidates("", 90)
			Expect(err).NotTo(HaveOccurred())
			Expect(set.Candidates).To(HaveLen(1))
			Expect(set.Candidates[0].SessionID).To(Equal("fine"))
			Expect(set.Warnings).To(HaveLen(1))
			Expect(set.Warnings[0].SessionID).To(Equal("broken"))
		})

		It("searches every scope when none is given", func() {
			put("music", "a", 10, daysAgo(100), daysAgo(100))
			put(model.GlobalScope, "b", 10, daysAgo(100), daysAgo(100))

			set, err := engine.FindCandidates("", 90)
			Expect(err).NotTo(HaveOccurred())
			Expect(set.Candidates).To(HaveLen(2))
		})
	})

	Describe("ArchiveByAge", func() {
		It("archives into the bundle of the record's creation month", func() {
			created := daysAgo(95)
			rec := put("music", "s1", 100, created, daysAgo(95))
			before := scopeBytes("music")

			res, err := engine.ArchiveByAge(eviction.AgeParams{RetentionDays: 90})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Archived).To(Equal(1))
			Expect(res.FreedBytes).To(Equal(rec.SizeBytes))
			Expect(res.Scopes).To(ConsistOf(eviction.ScopeResult{Scope: "music", Archived: 1, FreedBytes: rec.SizeBytes}))

			ym := model.YearMonthOf(created)
			b, err := arch.ReadBundle("music", ym)
			Expect(err).NotTo(HaveOccurred())
			Expect(b.Entries).To(HaveLen(1))
			Expect(b.Entries[0].SessionID).To(Equal("s1"))
			Expect(b.Entries[0].OriginalLastUsed).To(BeTemporally("==", daysAgo(95)))
			Expect(b.Entries[0].ArchivedAt).To(BeTemporally("==", now))
			Expect(filepath.Join(root, "music", ".archives", "memories-archive-"+string(ym)+".json")).To(BeAnExistingFile())

			Expect(store.RecordDir(root, "music", created, "s1")).NotTo(BeADirectory())
			Expect(before - scopeBytes("music")).To(Equal(rec.SizeBytes))

			m, err := arch.LoadOne("music", "s1")
			Expect(err).NotTo(HaveOccurred())
			Expect(m.Entry.Content).To(Equal(strings.Repeat("x", 100)))
		})

		It("keys the bundle by creation month even when use was recent-ish", func() {
			created := time.Date(2025, 12, 31, 23, 0, 0, 0, time.UTC)
			put("music", "s1", 10, created, daysAgo(120))

			_, err := engine.ArchiveByAge(eviction.AgeParams{RetentionDays: 90})
			Expect(err).NotTo(HaveOccurred())

			months, err := arch.Bundles("music")
			Expect(err).NotTo(HaveOccurred())
			Expect(months).To(Equal([]model.YearMonth{"2025-12"}))
		})

		It("is idempotent", func() {
			put("music", "s1", 10, daysAgo(100), daysAgo(100))
			put("music", "s2", 10, daysAgo(10), daysAgo(10))

			first, err := engine.ArchiveByAge(eviction.AgeParams{RetentionDays: 90})
			Expect(err).NotTo(HaveOccurred())
			Expect(first.Archived).To(Equal(1))

			second, err := engine.ArchiveByAge(eviction.AgeParams{RetentionDays: 90})
			Expect(err).NotTo(HaveOccurred())
			Expect(second.Archived).To(BeZero())
			Expect(second.Scopes).To(BeEmpty())
		})

		It("honours the candidate limit, oldest first", func() {
			put("music", "older", 10, daysAgo(300), daysAgo(300))
			put("music", "old", 10, daysAgo(200), daysAgo(200))

			res, err := engine.ArchiveByAge(eviction.AgeParams{RetentionDays: 90, Limit: 1})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Archived).To(Equal(1))
			_, err = arch.LoadOne("music", "older")
			Expect(err).NotTo(HaveOccurred())
			_, err = live.Find("music", "old")
			Expect(err).NotTo(HaveOccurred())
		})

		It("continues past an append failure and keeps the record live", func() {
			put("music", "bad", 10, daysAgo(100), daysAgo(100))
			put("music", "good", 10, daysAgo(100), daysAgo(100))
			engine = eviction.New(live, &flakyArchive{Store: arch, fail: map[string]bool{"bad": true}}, scan,
				eviction.WithClock(func() time.Time { return now }))

			res, err := engine.ArchiveByAge(eviction.AgeParams{RetentionDays: 90})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Archived).To(Equal(1))
			Expect(res.Failures).To(HaveLen(1))
			Expect(res.Failures[0].SessionID).To(Equal("bad"))
			Expect(res.Failures[0].Stage).To(Equal("append"))

			_, err = live.Find("music", "bad")
			Expect(err).NotTo(HaveOccurred())
			_, err = arch.LoadOne("music", "bad")
			Expect(errors.Is(err, archive.ErrNotFound)).To(BeTrue())
		})

		It("recovers from a failed delete without duplicating the entry", func() {
			created := daysAgo(100)
			put("music", "s1", 10, created, daysAgo(100))
			sticky := &stickyLive{FSStore: live, fail: map[string]bool{"s1": true}}
			engine = eviction.New(sticky, arch, scan, eviction.WithClock(func() time.Time { return now }))

			res, err := engine.ArchiveByAge(eviction.AgeParams{RetentionDays: 90})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Archived).To(BeZero())
			Expect(res.Failures).To(HaveLen(1))
			Expect(res.Failures[0].Stage).To(Equal("delete"))

			sticky.fail = nil
			res, err = engine.ArchiveByAge(eviction.AgeParams{RetentionDays: 90})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Archived).To(Equal(1))

			b, err := arch.ReadBundle("music", model.YearMonthOf(created))
			Expect(err).NotTo(HaveOccurred())
			Expect(b.Entries).To(HaveLen(1))
			_, err = live.Find("music", "s1")
			Expect(errors.Is(err, store.ErrNotFound)).To(BeTrue())
		})

		It("rejects non-positive retention and invalid scopes", func() {
			_, err := engine.ArchiveByAge(eviction.AgeParams{RetentionDays: 0})
			Expect(err).To(MatchError(eviction.ErrInvalidRetention))
			_, err = engine.ArchiveByAge(eviction.AgeParams{RetentionDays: 90, Scope: ".archives"})
			Expect(err).To(MatchError(model.ErrInvalidScope))
		})
	})

	Describe("ArchiveToThreshold", func() {
		It("evicts least recently used first regardless of age", func() {
			put("music", "cold", 300*1024, daysAgo(1), daysAgo(1))
			put("music", "warm", 300*1024, daysAgo(400), now.Add(-time.Hour))
			put("music", "hot", 300*1024, daysAgo(2), now)

			res, err := engine.ArchiveToThreshold(eviction.ThresholdParams{Scope: "music", TargetMB: 0.7})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Archived).To(Equal(1))
			_, err = arch.LoadOne("music", "cold")
			Expect(err).NotTo(HaveOccurred())
			Expect(scanner.ToMB(scopeBytes("music"))).To(BeNumerically("<=", 0.7))
		})

		It("breaks last-use ties by larger size", func() {
			same := daysAgo(30)
			put("music", "small", 100*1024, daysAgo(40), same)
			put("music", "large", 400*1024, daysAgo(40), same)

			res, err := engine.ArchiveToThreshold(eviction.ThresholdParams{Scope: "music", TargetMB: 0.3})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Archived).To(Equal(1))
			_, err = live.Find("music", "small")
			Expect(err).NotTo(HaveOccurred())
		})

		It("never grows the store and stops at the target", func() {
			for i, id := range []string{"a", "b", "c", "d", "e"} {
				put("music", id, 256*1024, daysAgo(10+i), daysAgo(10+i))
			}
			before := scopeBytes("music")

			res, err := engine.ArchiveToThreshold(eviction.ThresholdParams{Scope: "music", TargetMB: 0.6})
			Expect(err).NotTo(HaveOccurred())
			after := scopeBytes("music")
			Expect(after).To(BeNumerically("<=", before))
			Expect(scanner.ToMB(after)).To(BeNumerically("<=", 0.6))
			Expect(res.Exhausted).To(BeFalse())
			Expect(res.Scopes[0].BeforeMB).To(BeNumerically(">", res.Scopes[0].AfterMB))
		})

		It("does nothing when already under target", func() {
			put("music", "a", 10, daysAgo(500), daysAgo(500))

			res, err := engine.ArchiveToThreshold(eviction.ThresholdParams{Scope: "music", TargetMB: 1})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Archived).To(BeZero())
		})

		It("reports exhaustion when no candidate can be evicted", func() {
			rec := put("music", "a", 600*1024, daysAgo(5), daysAgo(5))
			dir := store.RecordDir(root, "music", rec.CreatedAt, "a")
			Expect(os.WriteFile(filepath.Join(dir, store.MetadataFile), []byte("nope"), 0o644)).To(Succeed())

			res, err := engine.ArchiveToThreshold(eviction.ThresholdParams{Scope: "music", TargetMB: 0.5})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Exhausted).To(BeTrue())
			Expect(res.Archived).To(BeZero())
			Expect(res.Warnings).To(HaveLen(1))
		})

		It("holds each scope to the target independently", func() {
			put("music", "m1", 400*1024, daysAgo(5), daysAgo(5))
			put("music", "m2", 400*1024, daysAgo(4), daysAgo(4))
			put("books", "b1", 400*1024, daysAgo(50), daysAgo(50))
			put("books", "b2", 400*1024, daysAgo(40), daysAgo(40))
			put("small", "s1", 10, daysAgo(900), daysAgo(900))

			res, err := engine.ArchiveToThreshold(eviction.ThresholdParams{TargetMB: 0.5})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Archived).To(Equal(2))
			Expect(res.Scopes).To(HaveLen(2))
			Expect(res.Scopes[0].Scope).To(Equal("books"))
			Expect(res.Scopes[1].Scope).To(Equal("music"))

			_, err = live.Find("books", "b2")
			Expect(err).NotTo(HaveOccurred())
			_, err = live.Find("music", "m2")
			Expect(err).NotTo(HaveOccurred())
			_, err = live.Find("small", "s1")
			Expect(err).NotTo(HaveOccurred())
		})

		It("rejects a non-positive target", func() {
			_, err := engine.ArchiveToThreshold(eviction.ThresholdParams{TargetMB: 0})
			Expect(err).To(MatchError(eviction.ErrInvalidThreshold))
			_, err = engine.ArchiveToThreshold(eviction.ThresholdParams{TargetMB: -3})
			Expect(err).To(MatchError(eviction.ErrInvalidThreshold))
		})
	})

	Describe("CheckAndArchive", func() {
		It("does not trigger under the target", func() {
			put("music", "a", 1024, daysAgo(300), daysAgo(300))

			res, err := engine.CheckAndArchive(eviction.ThresholdParams{Scope: "music", TargetMB: 5})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Triggered).To(BeFalse())
			Expect(res.Archived).To(BeZero())
			_, err = live.Find("music", "a")
			Expect(err).NotTo(HaveOccurred())
		})

		It("archives stale records once the scope is over the target", func() {
			put("music", "a", 2*mb, daysAgo(200), daysAgo(200))
			put("music", "b", 2*mb, daysAgo(150), daysAgo(150))
			put("music", "c", 2*mb, daysAgo(100), daysAgo(100))

			res, err := engine.CheckAndArchive(eviction.ThresholdParams{Scope: "music", TargetMB: 5})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Triggered).To(BeTrue())
			Expect(res.Archived).To(BeNumerically(">=", 2))
			Expect(scanner.ToMB(scopeBytes("music"))).To(BeNumerically("<", 5))

			_, err = live.Find("music", "c")
			Expect(err).NotTo(HaveOccurred())
		})

		It("checks every scope when none is given", func() {
			put("music", "a", 2*mb, daysAgo(20), daysAgo(20))
			put("music", "b", 2*mb, daysAgo(10), daysAgo(10))
			put("global", "g", 2*mb, daysAgo(900), daysAgo(900))

			res, err := engine.CheckAndArchive(eviction.ThresholdParams{TargetMB: 3})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Triggered).To(BeTrue())
			Expect(res.Archived).To(Equal(1))
			_, err = live.Find("global", "g")
			Expect(err).NotTo(HaveOccurred())
		})

		It("rejects a non-positive target", func() {
			_, err := engine.CheckAndArchive(eviction.ThresholdParams{TargetMB: 0})
			Expect(err).To(MatchError(eviction.ErrInvalidThreshold))
		})
	})
})
