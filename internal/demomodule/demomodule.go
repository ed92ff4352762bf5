// Package demomodule is a small module used by the sandbox and by tests: a
// people table with an auto-increment key, an online-clients table kept by
// the connection lifecycle reducers, and a dice log fed by the reducer RNG.
package demomodule

import (
	"errors"
	"fmt"
	"strings"

	"github.com/andreyvit/stdb"
)

type Person struct {
	ID   uint32 `stdb:"id"`
	Name string `stdb:"name"`
	Age  uint8  `stdb:"age"`
}

type Online struct {
	ConnectionID stdb.ConnectionID `stdb:"connection_id"`
	Identity     stdb.Identity     `stdb:"identity"`
	Since        stdb.Timestamp    `stdb:"since"`
}

type Roll struct {
	ID    uint64 `stdb:"id"`
	Who   string `stdb:"who"`
	Value uint8  `stdb:"value"`
}

type AddPersonArgs struct {
	Name string `stdb:"name"`
	Age  uint8  `stdb:"age"`
}

type RenameArgs struct {
	ID   uint32 `stdb:"id"`
	Name string `stdb:"name"`
}

type RemoveArgs struct {
	ID uint32 `stdb:"id"`
}

type RollArgs struct {
	Who   string `stdb:"who"`
	Sides uint8  `stdb:"sides"`
}

type RemindArgs struct {
	Message string            `stdb:"message"`
	Delay   stdb.TimeDuration `stdb:"delay"`
}

type MessageArgs struct {
	Message string `stdb:"message"`
}

var (
	ErrEmptyName    = errors.New("name must not be empty")
	ErrNoSuchPerson = errors.New("no such person")
)

// Define builds the module schema. Each call returns a fresh schema.
func Define() *stdb.Schema {
	scm := stdb.NewSchema()

	stdb.DefineTable(scm, "person", func(b *stdb.TableBuilder[Person]) {
		b.PrimaryKey("id").AutoInc("id").Index("person_age", stdb.IndexBTree, "age").Public()
	})
	stdb.DefineTable(scm, "online", func(b *stdb.TableBuilder[Online]) {
		b.PrimaryKey("connection_id").Index("online_identity", stdb.IndexHash, "identity")
	})
	stdb.DefineTable(scm, "roll", func(b *stdb.TableBuilder[Roll]) {
		b.PrimaryKey("id").AutoInc("id").Public()
	})

	stdb.OnInit(scm, func(ctx *stdb.ReducerContext) error {
		ctx.Logger().Info("module initialized", "at", ctx.Timestamp)
		return nil
	})
	stdb.OnClientConnected(scm, func(ctx *stdb.ReducerContext) error {
		if ctx.ConnectionID == nil {
			return errors.New("connected without a connection id")
		}
		return stdb.Insert(ctx.DB, &Online{ConnectionID: *ctx.ConnectionID, Identity: ctx.Sender, Since: ctx.Timestamp})
	})
	stdb.OnClientDisconnected(scm, func(ctx *stdb.ReducerContext) error {
		if ctx.ConnectionID == nil {
			return nil
		}
		_, err := stdb.DeleteByPK[Online](ctx.DB, *ctx.ConnectionID)
		return err
	})

	stdb.AddReducer(scm, "add_person", func(ctx *stdb.ReducerContext, args *AddPersonArgs) error {
		name := strings.TrimSpace(args.Name)
		if name == "" {
			return ErrEmptyName
		}
		p := &Person{Name: name, Age: args.Age}
		if err := stdb.Insert(ctx.DB, p); err != nil {
			return err
		}
		ctx.Logger().Info("added person", "id", p.ID, "name", p.Name)
		return nil
	})
	stdb.AddReducer(scm, "rename", func(ctx *stdb.ReducerContext, args *RenameArgs) error {
		if strings.TrimSpace(args.Name) == "" {
			return ErrEmptyName
		}
		p, err := stdb.FindByPK[Person](ctx.DB, args.ID)
		if err != nil {
			return err
		}
		if p == nil {
			return fmt.Errorf("%w: %d", ErrNoSuchPerson, args.ID)
		}
		if _, err := stdb.Delete(ctx.DB, p); err != nil {
			return err
		}
		p.Name = args.Name
		return stdb.Insert(ctx.DB, p)
	})
	stdb.AddReducer(scm, "remove_person", func(ctx *stdb.ReducerContext, args *RemoveArgs) error {
		ok, err := stdb.DeleteByPK[Person](ctx.DB, args.ID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %d", ErrNoSuchPerson, args.ID)
		}
		return nil
	})
	stdb.AddReducer(scm, "say_hello", func(ctx *stdb.ReducerContext, _ *stdb.NoArgs) error {
		for p, err := range stdb.All[Person](ctx.DB) {
			if err != nil {
				return err
			}
			ctx.Logger().Info("Hello, " + p.Name + "!")
		}
		ctx.Logger().Info("Hello, World!")
		return nil
	})
	stdb.AddReducer(scm, "greet_adults", func(ctx *stdb.ReducerContext, _ *stdb.NoArgs) error {
		c := stdb.ScanFiltered[Person](ctx.DB, stdb.ColCmp("age", stdb.CmpGe, uint8(18)))
		defer c.Close()
		for c.Next() {
			ctx.Logger().Info("Welcome, " + c.Row().Name)
		}
		return c.Err()
	})
	stdb.AddReducer(scm, "roll_dice", func(ctx *stdb.ReducerContext, args *RollArgs) error {
		sides := int(args.Sides)
		if sides < 2 {
			sides = 6
		}
		r := &Roll{Who: args.Who, Value: uint8(ctx.Rng().IntRange(1, sides+1))}
		return stdb.Insert(ctx.DB, r)
	})
	stdb.AddReducer(scm, "remind", func(ctx *stdb.ReducerContext, args *RemindArgs) error {
		_, err := ctx.DB.ScheduleReducer("log_message", args.Delay, &MessageArgs{Message: args.Message})
		return err
	})
	stdb.AddReducer(scm, "log_message", func(ctx *stdb.ReducerContext, args *MessageArgs) error {
		ctx.Logger().Info(args.Message)
		return nil
	})
	return scm
}
