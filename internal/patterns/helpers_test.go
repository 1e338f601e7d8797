package patterns

import (
	"time"

	"github.com/brianvoe/gofakeit/v6"
)

// weeklyRoutine returns 30 sessions one week apart at 06:30, give or take
// fifteen minutes, and five sessions at afternoon or evening hours on
// arbitrary days inside the same span.
//
// The span has to be long relative to the session count. Thirty sessions
// inside ten weeks span about 63 days, which puts the period 2 threshold at
// 15; the sessions split 15 and 15 across the two residues, so period 2 wins
// before 7 is tried. One session per week over about 200 days keeps every
// period below 7 under its threshold, while period 7 needs 14 of the 30.
func weeklyRoutine(seed int64) (onPattern, offPattern []time.Time) {
	faker := gofakeit.New(seed)
	start := time.Date(2021, time.January, 4, 6, 30, 0, 0, time.UTC)

	for w := 0; w < 30; w++ {
		jitter := time.Duration(faker.Number(-15, 15)) * time.Minute
		onPattern = append(onPattern, start.AddDate(0, 0, 7*w).Add(jitter))
	}
	for i := 0; i < 5; i++ {
		day := faker.Number(1, 200)
		offPattern = append(offPattern, time.Date(2021, time.January, 4+day,
			faker.Number(13, 22), faker.Number(0, 59), 0, 0, time.UTC))
	}
	return onPattern, offPattern
}

func hourSamples(times []time.Time) []Sample {
	samples := make([]Sample, len(times))
	for i, t := range times {
		samples[i] = Sample{At: t, Secondary: hourOfDay(t)}
	}
	return samples
}
