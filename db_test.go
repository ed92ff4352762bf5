package stdb_test

import (
	"errors"
	"fmt"
	"math"
	"log/slog"
	"reflect"
	"testing"
	"time"

	"github.com/andreyvit/stdb"
	"github.com/andreyvit/stdb/hostsim"
)

type Item struct {
	SKU   string `stdb:"sku"`
	Title string `stdb:"title"`
	Qty   uint32 `stdb:"qty"`
	Shelf *uint8 `stdb:"shelf"`
}

type Bin struct {
	ID     uint8   `stdb:"id"`
	Weight float32 `stdb:"weight"`
}

type Restock struct {
	SKU string `stdb:"sku"`
	Qty uint32 `stdb:"qty"`
}

// inventory is a module whose "run" reducer executes whatever body the test
// installs, so table operations can be driven from test code inside a real
// reducer call.
type inventory struct {
	scm  *stdb.Schema
	body func(ctx *stdb.ReducerContext) error
}

func newInventory() *inventory {
	inv := &inventory{scm: stdb.NewSchema()}
	stdb.DefineTable(inv.scm, "item", func(b *stdb.TableBuilder[Item]) {
		b.PrimaryKey("sku").Unique("title").Public()
	})
	stdb.DefineTable(inv.scm, "bin", func(b *stdb.TableBuilder[Bin]) {
		b.PrimaryKey("id")
	})
	stdb.AddReducer(inv.scm, "run", func(ctx *stdb.ReducerContext, _ *stdb.NoArgs) error {
		return inv.body(ctx)
	})
	stdb.AddReducer(inv.scm, "restock", func(ctx *stdb.ReducerContext, args *Restock) error {
		it, err := stdb.FindByPK[Item](ctx.DB, args.SKU)
		if err != nil {
			return err
		}
		if it == nil {
			return errors.New("unknown sku " + args.SKU)
		}
		if _, err := stdb.Delete(ctx.DB, it); err != nil {
			return err
		}
		it.Qty += args.Qty
		return stdb.Insert(ctx.DB, it)
	})
	return inv
}

func (inv *inventory) run(t testing.TB, h *hostsim.Host, body func(ctx *stdb.ReducerContext) error) error {
	t.Helper()
	inv.body = body
	return h.CallReducer("run", hostsim.Caller{}, nil)
}

func (inv *inventory) mustRun(t testing.TB, h *hostsim.Host, body func(ctx *stdb.ReducerContext) error) {
	t.Helper()
	if err := inv.run(t, h, body); err != nil {
		t.Fatal(err)
	}
}

func setup(t testing.TB) (*inventory, *hostsim.Host) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	h, err := hostsim.New(hostsim.Options{
		Logger:        slog.New(slog.DiscardHandler),
		Now:           func() time.Time { return now },
		IterBatchRows: 2,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { h.Close() })
	inv := newInventory()
	if err := h.Load(inv.scm); err != nil {
		t.Fatal(err)
	}
	return inv, h
}

func shelf(n uint8) *uint8 {
	return &n
}

func stock(t testing.TB, inv *inventory, h *hostsim.Host, items ...Item) {
	t.Helper()
	inv.mustRun(t, h, func(ctx *stdb.ReducerContext) error {
		for i := range items {
			if err := stdb.Insert(ctx.DB, &items[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func TestDB_insertAndFind(t *testing.T) {
	inv, h := setup(t)
	stock(t, inv, h,
		Item{SKU: "a1", Title: "Apple", Qty: 5, Shelf: shelf(1)},
		Item{SKU: "b2", Title: "Banana", Qty: 0},
		Item{SKU: "c3", Title: "Cherry", Qty: 12, Shelf: shelf(3)},
	)

	inv.mustRun(t, h, func(ctx *stdb.ReducerContext) error {
		it := must(stdb.FindByPK[Item](ctx.DB, "c3"))
		deepEq(t, *it, Item{SKU: "c3", Title: "Cherry", Qty: 12, Shelf: shelf(3)})

		deepEq(t, must(stdb.FindByPK[Item](ctx.DB, "zz")), (*Item)(nil))

		byTitle := must(stdb.FilterByColEq[Item](ctx.DB, "title", "Banana"))
		deepEq(t, len(byTitle), 1)
		deepEq(t, byTitle[0].SKU, "b2")

		deepEq(t, must(stdb.Count[Item](ctx.DB)), 3)

		var skus []string
		for _, it := range must(stdb.Collect[Item](ctx.DB)) {
			skus = append(skus, it.SKU)
		}
		deepEq(t, skus, []string{"a1", "b2", "c3"})
		return nil
	})
}

func TestDB_uniqueViolation(t *testing.T) {
	inv, h := setup(t)
	stock(t, inv, h, Item{SKU: "a1", Title: "Apple"})

	tests := []Item{
		{SKU: "a1", Title: "Another"},
		{SKU: "a2", Title: "Apple"},
	}
	for _, row := range tests {
		err := inv.run(t, h, func(ctx *stdb.ReducerContext) error {
			return stdb.Insert(ctx.DB, &row)
		})
		var te *stdb.TableError
		if !errors.As(err, &te) || te.Op != "insert" || !errors.Is(err, stdb.ErrnoUniqueAlreadyExists) {
			t.Errorf("** insert %v: got %v, wanted a unique violation", row, err)
		}
	}

	// the failed calls left nothing behind
	deepEq(t, len(must(h.Rows("item"))), 1)
}

func TestDB_failedReducerRollsBack(t *testing.T) {
	inv, h := setup(t)
	stock(t, inv, h, Item{SKU: "a1", Title: "Apple", Qty: 1})

	boom := errors.New("boom")
	err := inv.run(t, h, func(ctx *stdb.ReducerContext) error {
		ensure(stdb.Insert(ctx.DB, &Item{SKU: "b2", Title: "Banana"}))
		must(stdb.DeleteByPK[Item](ctx.DB, "a1"))
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("** got %v, wanted %v", err, boom)
	}
	inv.mustRun(t, h, func(ctx *stdb.ReducerContext) error {
		var skus []string
		for it, err := range stdb.All[Item](ctx.DB) {
			ensure(err)
			skus = append(skus, it.SKU)
		}
		deepEq(t, skus, []string{"a1"})
		return nil
	})
}

func TestDB_restock(t *testing.T) {
	inv, h := setup(t)
	stock(t, inv, h, Item{SKU: "a1", Title: "Apple", Qty: 1})
	ensure(h.CallReducer("restock", hostsim.Caller{}, must(stdb.Marshal(Restock{SKU: "a1", Qty: 4}))))
	if err := h.CallReducer("restock", hostsim.Caller{}, must(stdb.Marshal(Restock{SKU: "x", Qty: 4}))); err == nil {
		t.Errorf("** restock of an unknown sku succeeded")
	}

	var items []Item
	for _, data := range must(h.Rows("item")) {
		var it Item
		ensure(stdb.Unmarshal(data, &it))
		items = append(items, it)
	}
	deepEq(t, items, []Item{{SKU: "a1", Title: "Apple", Qty: 5}})
}

func TestDB_scanFiltered(t *testing.T) {
	inv, h := setup(t)
	stock(t, inv, h,
		Item{SKU: "a1", Title: "Apple", Qty: 5},
		Item{SKU: "b2", Title: "Banana", Qty: 0},
		Item{SKU: "c3", Title: "Cherry", Qty: 12},
		Item{SKU: "d4", Title: "Date", Qty: 40},
	)

	tests := []struct {
		filter stdb.Filter
		skus   []string
	}{
		{stdb.ColCmp("qty", stdb.CmpGt, uint32(4)), []string{"a1", "c3", "d4"}},
		{stdb.And(stdb.ColCmp("qty", stdb.CmpGe, uint32(5)), stdb.ColCmp("qty", stdb.CmpLt, uint32(40))), []string{"a1", "c3"}},
		{stdb.Or(stdb.ColEq("sku", "b2"), stdb.ColEq("qty", uint32(40))), []string{"b2", "d4"}},
		{stdb.Not(stdb.ColEq("title", "Apple")), []string{"b2", "c3", "d4"}},
		{stdb.And(), []string{"a1", "b2", "c3", "d4"}},
	}
	for _, tt := range tests {
		inv.mustRun(t, h, func(ctx *stdb.ReducerContext) error {
			c := stdb.ScanFiltered[Item](ctx.DB, tt.filter)
			defer c.Close()
			var skus []string
			for c.Next() {
				skus = append(skus, c.Row().SKU)
			}
			ensure(c.Err())
			if !reflect.DeepEqual(skus, tt.skus) {
				t.Errorf("** %v: got %v, wanted %v", tt.filter, skus, tt.skus)
			}
			return nil
		})
	}

	inv.mustRun(t, h, func(ctx *stdb.ReducerContext) error {
		c := stdb.ScanFiltered[Item](ctx.DB, stdb.ColEq("nope", 1))
		if c.Next() || !errors.Is(c.Err(), stdb.ErrUnknownColumn) {
			t.Errorf("** unknown column: got %v, wanted %v", c.Err(), stdb.ErrUnknownColumn)
		}
		return c.Close()
	})
}

func TestDB_cursorClosedEarly(t *testing.T) {
	inv, h := setup(t)
	stock(t, inv, h,
		Item{SKU: "a1", Title: "Apple"},
		Item{SKU: "b2", Title: "Banana"},
		Item{SKU: "c3", Title: "Cherry"},
	)
	inv.mustRun(t, h, func(ctx *stdb.ReducerContext) error {
		c := stdb.Scan[Item](ctx.DB)
		if !c.Next() {
			t.Fatalf("** empty scan: %v", c.Err())
		}
		ensure(c.Close())
		ensure(c.Close())
		deepEq(t, c.Next(), false)

		for it, err := range stdb.All[Item](ctx.DB) {
			ensure(err)
			if it.SKU == "a1" {
				break
			}
		}
		return nil
	})
	buffers, iters := h.OpenHandles()
	deepEq(t, [2]int{buffers, iters}, [2]int{0, 0})
}

func TestDB_deleteByColEq(t *testing.T) {
	inv, h := setup(t)
	stock(t, inv, h,
		Item{SKU: "a1", Title: "Apple", Qty: 0},
		Item{SKU: "b2", Title: "Banana", Qty: 0},
		Item{SKU: "c3", Title: "Cherry", Qty: 2},
	)
	inv.mustRun(t, h, func(ctx *stdb.ReducerContext) error {
		deepEq(t, must(stdb.DeleteByColEq[Item](ctx.DB, "qty", uint32(0))), uint32(2))
		deepEq(t, must(stdb.DeleteByColEq[Item](ctx.DB, "qty", uint32(0))), uint32(0))
		deepEq(t, must(stdb.DeleteByPK[Item](ctx.DB, "c3")), true)
		deepEq(t, must(stdb.DeleteByPK[Item](ctx.DB, "c3")), false)

		_, err := stdb.DeleteByColEq[Item](ctx.DB, "qty", "zero")
		if !errors.Is(err, stdb.ErrTypeMismatch) {
			t.Errorf("** got %v, wanted %v", err, stdb.ErrTypeMismatch)
		}
		return nil
	})
}

func TestDB_keysAreNotNarrowed(t *testing.T) {
	inv, h := setup(t)
	inv.mustRun(t, h, func(ctx *stdb.ReducerContext) error {
		return stdb.Insert(ctx.DB, &Bin{ID: 44, Weight: 0.5})
	})

	ops := []struct {
		name string
		f    func(db *stdb.DB, v any) error
	}{
		{"DeleteByColEq", func(db *stdb.DB, v any) error {
			_, err := stdb.DeleteByColEq[Bin](db, "id", v)
			return err
		}},
		{"DeleteByPK", func(db *stdb.DB, v any) error {
			_, err := stdb.DeleteByPK[Bin](db, v)
			return err
		}},
		{"FilterByColEq", func(db *stdb.DB, v any) error {
			_, err := stdb.FilterByColEq[Bin](db, "id", v)
			return err
		}},
		{"FindByPK", func(db *stdb.DB, v any) error {
			_, err := stdb.FindByPK[Bin](db, v)
			return err
		}},
	}
	// 300 would wrap to 44, the stored key
	values := []any{300, -1, uint64(math.MaxUint64), uint16(300), int8(-1)}
	for _, op := range ops {
		for _, v := range values {
			t.Run(fmt.Sprintf("%s %T(%v)", op.name, v, v), func(t *testing.T) {
				inv.mustRun(t, h, func(ctx *stdb.ReducerContext) error {
					if err := op.f(ctx.DB, v); !errors.Is(err, stdb.ErrTypeMismatch) {
						t.Errorf("** got %v, wanted %v", err, stdb.ErrTypeMismatch)
					}
					deepEq(t, must(stdb.Count[Bin](ctx.DB)), 1)
					return nil
				})
			})
		}
	}

	inv.mustRun(t, h, func(ctx *stdb.ReducerContext) error {
		deepEq(t, must(stdb.FindByPK[Bin](ctx.DB, 44)).Weight, float32(0.5))
		deepEq(t, len(must(stdb.FilterByColEq[Bin](ctx.DB, "id", uint64(44)))), 1)
		deepEq(t, len(must(stdb.FilterByColEq[Bin](ctx.DB, "weight", 0.5))), 1)

		// 0.1 has no exact float32 form
		_, err := stdb.FilterByColEq[Bin](ctx.DB, "weight", 0.1)
		if !errors.Is(err, stdb.ErrTypeMismatch) {
			t.Errorf("** got %v, wanted %v", err, stdb.ErrTypeMismatch)
		}
		deepEq(t, len(must(stdb.FilterByColEq[Bin](ctx.DB, "weight", float32(0.1)))), 0)

		deepEq(t, must(stdb.DeleteByPK[Bin](ctx.DB, 44)), true)
		deepEq(t, must(stdb.Count[Bin](ctx.DB)), 0)
		return nil
	})
}

func TestDB_createIndex(t *testing.T) {
	inv, h := setup(t)
	stock(t, inv, h, Item{SKU: "a1", Title: "Apple", Qty: 3})
	inv.mustRun(t, h, func(ctx *stdb.ReducerContext) error {
		ensure(stdb.CreateIndex[Item](ctx.DB, "item_qty", stdb.IndexBTree, "qty"))
		err := stdb.CreateIndex[Item](ctx.DB, "item_bad", stdb.IndexBTree, "nope")
		if !errors.Is(err, stdb.ErrUnknownColumn) {
			t.Errorf("** got %v, wanted %v", err, stdb.ErrUnknownColumn)
		}
		rows := must(stdb.FilterByColEq[Item](ctx.DB, "qty", uint32(3)))
		deepEq(t, len(rows), 1)
		return nil
	})
}

func TestDB_tableIDs(t *testing.T) {
	inv, h := setup(t)
	inv.mustRun(t, h, func(ctx *stdb.ReducerContext) error {
		id := must(ctx.DB.GetTableID("item"))
		deepEq(t, id != 0, true)
		deepEq(t, must(ctx.DB.TableID(stdb.TableFor[Item](ctx.DB.Schema()))), id)

		_, err := ctx.DB.GetTableID("nope")
		if !errors.Is(err, stdb.ErrnoNoSuchTable) {
			t.Errorf("** got %v, wanted %v", err, stdb.ErrnoNoSuchTable)
		}
		return nil
	})
}

func TestDB_scheduleAndCancel(t *testing.T) {
	inv, h := setup(t)
	stock(t, inv, h, Item{SKU: "a1", Title: "Apple", Qty: 1})

	var cancelled stdb.ScheduleID
	inv.mustRun(t, h, func(ctx *stdb.ReducerContext) error {
		must(ctx.DB.ScheduleReducer("restock", 0, &Restock{SKU: "a1", Qty: 2}))
		cancelled = must(ctx.DB.ScheduleReducer("restock", 0, Restock{SKU: "a1", Qty: 100}))

		if _, err := ctx.DB.ScheduleReducer("nope", 0, stdb.NoArgs{}); !errors.Is(err, stdb.ErrUnknownReducer) {
			t.Errorf("** got %v, wanted %v", err, stdb.ErrUnknownReducer)
		}
		if _, err := ctx.DB.ScheduleReducer("restock", 0, Item{}); !errors.Is(err, stdb.ErrTypeMismatch) {
			t.Errorf("** got %v, wanted %v", err, stdb.ErrTypeMismatch)
		}
		return nil
	})
	deepEq(t, len(h.Scheduled()), 2)

	inv.mustRun(t, h, func(ctx *stdb.ReducerContext) error {
		return ctx.DB.CancelReducer(cancelled)
	})
	deepEq(t, len(h.Scheduled()), 1)

	deepEq(t, must(h.RunDue()), 1)
	deepEq(t, len(h.Scheduled()), 0)

	inv.mustRun(t, h, func(ctx *stdb.ReducerContext) error {
		deepEq(t, must(stdb.FindByPK[Item](ctx.DB, "a1")).Qty, uint32(3))
		return ctx.DB.CancelReducer(cancelled)
	})
}

func TestDB_reducerContext(t *testing.T) {
	inv, h := setup(t)
	sender := stdb.Identity{0: 0xaa, 31: 0x01}
	inv.body = func(ctx *stdb.ReducerContext) error {
		deepEq(t, ctx.Sender, sender)
		deepEq(t, ctx.ConnectionID, (*stdb.ConnectionID)(nil))
		deepEq(t, ctx.Timestamp.Time().Truncate(time.Second).UTC(), time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
		deepEq(t, ctx.Reducer().Name(), "run")
		deepEq(t, stdb.FromContext(ctx.Context()), ctx)
		return nil
	}
	ensure(h.CallReducer("run", hostsim.Caller{Identity: sender}, nil))
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

func deepEq[T any](t testing.TB, a, e T) {
	if !reflect.DeepEqual(a, e) {
		t.Helper()
		t.Errorf("** got %v, wanted %v", a, e)
	}
}
