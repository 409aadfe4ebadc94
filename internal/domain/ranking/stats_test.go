package ranking

import (
	"math"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func all(n int) []bool {
	p := make([]bool, n)
	for i := range p {
		p[i] = true
	}
	return p
}

func TestStandardize(t *testing.T) {
	Convey("Given a population", t, func() {
		values := []float64{2, 4, 4, 4, 5, 5, 7, 9}

		Convey("z-scores use the sample standard deviation", func() {
			z, ok := standardize(values, all(len(values)))
			So(ok, ShouldBeTrue)
			sd := math.Sqrt(32.0 / 7)
			So(z[0], ShouldAlmostEqual, -3/sd, 1e-12)
			So(z[4], ShouldAlmostEqual, 0, 1e-12)
			So(z[7], ShouldAlmostEqual, 4/sd, 1e-12)
		})

		Convey("absent members neither move the mean nor get a score", func() {
			withOutlier := append(append([]float64{}, values...), 1000)
			present := append(all(len(values)), false)
			z, ok := standardize(withOutlier, present)
			So(ok, ShouldBeTrue)
			So(z[7], ShouldAlmostEqual, 4/math.Sqrt(32.0/7), 1e-12)
			So(z[8], ShouldEqual, 0)

			withNaN := append(append([]float64{}, values...), math.NaN())
			z, ok = standardize(withNaN, present)
			So(ok, ShouldBeTrue)
			So(z[0], ShouldAlmostEqual, -3/math.Sqrt(32.0/7), 1e-12)
			So(z[8], ShouldEqual, 0)
		})
	})

	Convey("Degenerate populations give zeros", t, func() {
		for _, c := range []struct {
			values  []float64
			present []bool
		}{
			{[]float64{1500}, []bool{true}},
			{[]float64{1500, 1600}, []bool{true, false}},
			{[]float64{0.5, 0.5, 0.5}, all(3)},
			{[]float64{1, math.NaN()}, all(2)},
			{[]float64{1, math.Inf(1)}, all(2)},
		} {
			z, ok := standardize(c.values, c.present)
			So(ok, ShouldBeFalse)
			for _, v := range z {
				So(v, ShouldEqual, 0)
			}
		}
	})
}
