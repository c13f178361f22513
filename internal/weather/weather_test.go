package weather

import "testing"

func TestWeekIndexDeterministic(t *testing.T) {
	for week := uint64(0); week < 20; week++ {
		a := WeekIndex(42, week)
		b := WeekIndex(42, week)
		if a != b {
			t.Fatalf("week %d: same seed produced %+v and %+v", week, a, b)
		}
	}
}

func TestWeekIndexBounds(t *testing.T) {
	for week := uint64(0); week < 104; week++ {
		wx := WeekIndex(7, week)
		for name, v := range map[string]float64{
			"humidity":    wx.Humidity,
			"temperature": wx.Temperature,
			"rainfall":    wx.Rainfall,
		} {
			if v < 0 || v > 1 {
				t.Fatalf("week %d: %s = %v out of [0,1]", week, name, v)
			}
		}
	}
}

func TestSeasonalTemperatureShape(t *testing.T) {
	// The seasonal baseline dominates: midsummer must beat midwinter on
	// every track, whatever the noise says.
	midyear := WeekIndex(42, 26)
	yearEdge := WeekIndex(42, 0)
	if midyear.Temperature <= yearEdge.Temperature {
		t.Fatalf("midyear temperature %v not above year-edge %v",
			midyear.Temperature, yearEdge.Temperature)
	}
}
