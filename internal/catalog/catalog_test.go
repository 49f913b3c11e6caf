package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPractitionerID = uuid.MustParse("7b3a1c9e-4f2d-4a8b-9c6e-1d5f8a2b3c4d")

func testDirectory() *MemoryDirectory {
	dir := NewMemoryDirectory()
	dir.AddPractitioner(Practitioner{
		ID:   testPractitionerID,
		Name: "Dr. Priya Sharma",
		Hours: map[time.Weekday]DayHours{
			time.Monday:  {StartMinute: 9 * 60, EndMinute: 17 * 60, SlotMinutes: 30},
			time.Tuesday: {StartMinute: 10 * 60, EndMinute: 13 * 60, SlotMinutes: 30},
			// Wednesday off
			time.Thursday: {StartMinute: 9 * 60, EndMinute: 17 * 60, SlotMinutes: 30},
			time.Friday:   {StartMinute: 9 * 60, EndMinute: 17 * 60, SlotMinutes: 30},
			time.Saturday: {StartMinute: 9 * 60, EndMinute: 12 * 60, SlotMinutes: 30},
		},
	})
	for _, t := range DefaultTreatments() {
		dir.AddTreatment(t)
	}
	return dir
}

func TestGenerateSlots(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cat := New(testDirectory())

	t.Run("full working day", func(t *testing.T) {
		day := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC) // Monday
		slots, err := cat.GenerateSlots(ctx, testPractitionerID, day, day)
		require.NoError(t, err)

		// 09:00-17:00 on a 30-minute grid
		require.Len(t, slots, 16)
		assert.Equal(t, day.Add(9*time.Hour), slots[0].Start)
		assert.Equal(t, day.Add(9*time.Hour+30*time.Minute), slots[0].End)
		assert.Equal(t, day.Add(16*time.Hour+30*time.Minute), slots[15].Start)

		for i := 1; i < len(slots); i++ {
			assert.Equal(t, slots[i-1].End, slots[i].Start, "slots must not overlap or gap")
		}
	})

	t.Run("day off produces no slots", func(t *testing.T) {
		day := time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC) // Wednesday
		slots, err := cat.GenerateSlots(ctx, testPractitionerID, day, day)
		require.NoError(t, err)
		assert.Empty(t, slots)
	})

	t.Run("blackout day excluded from range", func(t *testing.T) {
		dir := testDirectory()
		monday := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
		tuesday := monday.AddDate(0, 0, 1)
		dir.AddBlackout(testPractitionerID, monday)

		slots, err := New(dir).GenerateSlots(ctx, testPractitionerID, monday, tuesday)
		require.NoError(t, err)

		// Only Tuesday's 10:00-13:00 grid remains.
		require.Len(t, slots, 6)
		for _, s := range slots {
			assert.Equal(t, tuesday, dayOf(s.Start))
		}
	})

	t.Run("clinic-wide blackout applies to every practitioner", func(t *testing.T) {
		dir := testDirectory()
		monday := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
		dir.AddBlackout(uuid.Nil, monday)

		slots, err := New(dir).GenerateSlots(ctx, testPractitionerID, monday, monday)
		require.NoError(t, err)
		assert.Empty(t, slots)
	})

	t.Run("end before start", func(t *testing.T) {
		day := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
		_, err := cat.GenerateSlots(ctx, testPractitionerID, day, day.AddDate(0, 0, -1))
		assert.ErrorIs(t, err, ErrInvalidRange)
	})

	t.Run("unknown practitioner", func(t *testing.T) {
		day := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
		_, err := cat.GenerateSlots(ctx, uuid.New(), day, day)
		assert.ErrorIs(t, err, ErrPractitionerNotFound)
	})
}

func TestResolveSpan(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := testDirectory()
	cat := New(dir)

	abhyanga, err := dir.GetTreatment(ctx, "abhyanga") // 60m -> 2 slots
	require.NoError(t, err)
	panchakarma, err := dir.GetTreatment(ctx, "panchakarma") // 90m -> 3 slots
	require.NoError(t, err)

	monday10 := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)

	t.Run("single-day span is contiguous", func(t *testing.T) {
		slots, err := cat.ResolveSpan(ctx, testPractitionerID, monday10, *panchakarma)
		require.NoError(t, err)
		require.Len(t, slots, 3)
		assert.Equal(t, monday10, slots[0].Start)
		assert.Equal(t, monday10.Add(90*time.Minute), slots[2].End)
		for i := 1; i < len(slots); i++ {
			assert.Equal(t, slots[i-1].End, slots[i].Start)
		}
	})

	t.Run("start off grid", func(t *testing.T) {
		_, err := cat.ResolveSpan(ctx, testPractitionerID, monday10.Add(10*time.Minute), *abhyanga)
		assert.ErrorIs(t, err, ErrInvalidRange)
	})

	t.Run("span past end of day", func(t *testing.T) {
		late := time.Date(2025, 3, 3, 16, 30, 0, 0, time.UTC)
		_, err := cat.ResolveSpan(ctx, testPractitionerID, late, *abhyanga)
		assert.ErrorIs(t, err, ErrInvalidRange)
	})

	t.Run("day off", func(t *testing.T) {
		wednesday := time.Date(2025, 3, 5, 10, 0, 0, 0, time.UTC)
		_, err := cat.ResolveSpan(ctx, testPractitionerID, wednesday, *abhyanga)
		assert.ErrorIs(t, err, ErrInvalidRange)
	})

	t.Run("blackout day", func(t *testing.T) {
		d := testDirectory()
		d.AddBlackout(testPractitionerID, monday10)
		_, err := New(d).ResolveSpan(ctx, testPractitionerID, monday10, *abhyanga)
		assert.ErrorIs(t, err, ErrInvalidRange)
	})
}

func TestSlotBookable(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
	slot := Slot{PractitionerID: testPractitionerID, Start: start, End: start.Add(30 * time.Minute)}

	assert.True(t, slot.Bookable(start.Add(-time.Minute)))
	assert.False(t, slot.Bookable(start), "a slot that has started is gone")
	assert.False(t, slot.Bookable(start.Add(time.Minute)))
}

func TestTreatmentSlotCount(t *testing.T) {
	t.Parallel()

	cases := []struct {
		duration time.Duration
		want     int
	}{
		{30 * time.Minute, 1},
		{45 * time.Minute, 2},
		{60 * time.Minute, 2},
		{90 * time.Minute, 3},
	}
	for _, tc := range cases {
		got := Treatment{Duration: tc.duration}.SlotCount(30)
		assert.Equal(t, tc.want, got, "duration %s", tc.duration)
	}
}

func TestSlotKeyString(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
	k := SlotKey{PractitionerID: testPractitionerID, Start: start}
	assert.Equal(t, testPractitionerID.String()+"|2025-03-03T10:00:00Z", k.String())
}
