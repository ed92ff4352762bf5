package commitlog_test

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/andreyvit/stdb/commitlog"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func open(t testing.TB, dir string, o commitlog.Options) *commitlog.Log {
	if o.Now == nil {
		o.Now = func() time.Time { return t0 }
	}
	l, err := commitlog.Open(dir, o)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func replayAll(t testing.TB, l *commitlog.Log) []string {
	var recs []string
	_, err := l.Replay(func(rec commitlog.Record) error {
		recs = append(recs, string(rec.Data))
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return recs
}

func TestLog_appendReplay(t *testing.T) {
	dir := t.TempDir()
	l := open(t, dir, commitlog.Options{})
	deepEq(t, must(l.Append([]byte("hello"))), uint64(0))
	deepEq(t, must(l.Append([]byte("world"))), uint64(1))
	deepEq(t, replayAll(t, l), []string{"hello", "world"})
	ensure(l.Close())

	l = open(t, dir, commitlog.Options{})
	deepEq(t, l.NextOffset(), uint64(2))
	deepEq(t, must(l.Append([]byte("again"))), uint64(2))
	deepEq(t, replayAll(t, l), []string{"hello", "world", "again"})
}

func TestLog_rotation(t *testing.T) {
	dir := t.TempDir()
	l := open(t, dir, commitlog.Options{MaxFileSize: 100})
	for _, s := range []string{"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", "b", "c"} {
		must(l.Append([]byte(s)))
	}
	ensure(l.Close())

	names, _ := filepath.Glob(filepath.Join(dir, "commits-*.log"))
	deepEq(t, len(names), 2)
	deepEq(t, filepath.Base(names[1]), "commits-0000000002-0000000000000001.log")

	l = open(t, dir, commitlog.Options{MaxFileSize: 100})
	deepEq(t, replayAll(t, l), []string{"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", "b", "c"})
}

func TestLog_truncatesCorruptedTail(t *testing.T) {
	dir := t.TempDir()
	l := open(t, dir, commitlog.Options{})
	must(l.Append([]byte("first")))
	must(l.Append([]byte("second")))
	ensure(l.Close())

	fn := filepath.Join(dir, "commits-0000000001-0000000000000000.log")
	data := must(os.ReadFile(fn))
	data[len(data)-3] ^= 0xFF
	ensure(os.WriteFile(fn, data, 0o666))

	l = open(t, dir, commitlog.Options{})
	deepEq(t, replayAll(t, l), []string{"first"})
	deepEq(t, l.NextOffset(), uint64(1))
	deepEq(t, must(l.Append([]byte("third"))), uint64(1))
	deepEq(t, replayAll(t, l), []string{"first", "third"})
}

func TestLog_tornWrite(t *testing.T) {
	dir := t.TempDir()
	l := open(t, dir, commitlog.Options{})
	must(l.Append([]byte("first")))
	must(l.Append([]byte("second")))
	ensure(l.Close())

	fn := filepath.Join(dir, "commits-0000000001-0000000000000000.log")
	data := must(os.ReadFile(fn))
	ensure(os.WriteFile(fn, data[:len(data)-5], 0o666))

	l = open(t, dir, commitlog.Options{})
	deepEq(t, replayAll(t, l), []string{"first"})
}

func TestLog_incompatible(t *testing.T) {
	dir := t.TempDir()
	l := open(t, dir, commitlog.Options{Invariant: [32]byte{1}})
	must(l.Append([]byte("x")))
	ensure(l.Close())

	_, err := commitlog.Open(dir, commitlog.Options{Invariant: [32]byte{2}})
	if err != commitlog.ErrIncompatible {
		t.Errorf("** got %v, wanted %v", err, commitlog.ErrIncompatible)
	}
}

func TestLog_closed(t *testing.T) {
	l := open(t, t.TempDir(), commitlog.Options{})
	ensure(l.Close())
	_, err := l.Append([]byte("x"))
	deepEq(t, err, commitlog.ErrClosed)
}

func deepEq[T any](t testing.TB, a, e T) bool {
	if !reflect.DeepEqual(a, e) {
		t.Helper()
		t.Errorf("** got %v, wanted %v", a, e)
		return false
	}
	return true
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func ensure(err error) {
	if err != nil {
		panic(err)
	}
}
