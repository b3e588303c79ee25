package match

import (
	"context"
	"errors"
	"testing"

	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/models"
	. "github.com/smartystreets/goconvey/convey"
)

func TestCreate(t *testing.T) {
	Convey("Given a player creating a match", t, func() {
		h := newHarness(false)

		Convey("With odd sets and legs", func() {
			msg, err := h.svc.Create(context.Background(), CreateCommand{Identity: "auth|anna", ConnectionID: "conn-a", Sets: 3, Legs: 5})

			Convey("Then a qualifying match with a room and an empty aggregate exists", func() {
				So(err, ShouldBeNil)
				So(msg.Action, ShouldEqual, ActionCreate)
				id := msg.Metadata.Game.ID
				So(msg.Message, ShouldEqual, id)

				m := h.records.matches[id]
				So(m.Status, ShouldEqual, models.StatusQualifying)
				So(m.PlayerCount, ShouldEqual, 2)
				So(m.X01.StartingScore, ShouldEqual, 501)
				So(m.X01.DoubleOut, ShouldBeTrue)
				So(m.MeetingIdentifier, ShouldEqual, "room-"+id)

				agg := h.aggregate(id)
				So(agg.Players, ShouldBeEmpty)
				So(msg.Metadata.NextPlayer, ShouldBeNil)
				So(h.conns.current["anna"], ShouldEqual, "conn-a")
			})
		})

		Convey("Twice within the same instant", func() {
			first, err := h.svc.Create(context.Background(), CreateCommand{Identity: "auth|anna", Sets: 1, Legs: 3})
			So(err, ShouldBeNil)
			second, err := h.svc.Create(context.Background(), CreateCommand{Identity: "auth|anna", Sets: 3, Legs: 5})
			So(err, ShouldBeNil)

			Convey("Then both matches keep their own id and settings", func() {
				a, b := first.Metadata.Game.ID, second.Metadata.Game.ID
				So(a, ShouldNotEqual, b)
				So(h.records.matches[a].X01.Sets, ShouldEqual, 1)
				So(h.records.matches[b].X01.Sets, ShouldEqual, 3)
			})
		})

		Convey("With an even number of legs", func() {
			_, err := h.svc.Create(context.Background(), CreateCommand{Identity: "auth|anna", Sets: 1, Legs: 2})
			So(errors.Is(err, ErrValidation), ShouldBeTrue)
		})

		Convey("With no sets", func() {
			_, err := h.svc.Create(context.Background(), CreateCommand{Identity: "auth|anna", Sets: 0, Legs: 3})
			So(errors.Is(err, ErrValidation), ShouldBeTrue)
		})
	})
}

func TestState(t *testing.T) {
	Convey("Given a started match", t, func() {
		h := newHarness(false)
		id := h.startedMatch(1, 3)

		Convey("The state names an opener and no winner", func() {
			msg, err := h.svc.State(context.Background(), id, "")
			So(err, ShouldBeNil)
			So([]string{"anna", "bert"}, ShouldContain, msg.Metadata.Next())
			So(msg.Metadata.WinningPlayer, ShouldBeNil)
			So(msg.Metadata.MeetingToken, ShouldBeEmpty)
		})

		Convey("An unknown match is not found", func() {
			_, err := h.svc.State(context.Background(), "nope", "")
			So(errors.Is(err, ErrMatchNotFound), ShouldBeTrue)
		})
	})
}
