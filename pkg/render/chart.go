package render

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// Series is one named reward curve, e.g. the per-step reward of an episode
type Series struct {
	Name    string
	Rewards []float64
}

// WriteRewardChart renders the series as one HTML line chart
func WriteRewardChart(w io.Writer, title string, runs ...Series) error {
	if len(runs) == 0 {
		return fmt.Errorf("no reward series to plot")
	}

	numSteps := 0
	for _, r := range runs {
		if len(r.Rewards) > numSteps {
			numSteps = len(r.Rewards)
		}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title: title,
		}),
		charts.WithInitializationOpts(opts.Initialization{
			Theme: "shine",
		}),
		charts.WithXAxisOpts(opts.XAxis{
			Name: "step",
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Name: "reward",
		}),
	)

	steps := make([]string, 0, numSteps)
	for i := 0; i < numSteps; i++ {
		steps = append(steps, fmt.Sprintf("%d", i))
	}

	line = line.SetXAxis(steps)
	for _, r := range runs {
		items := make([]opts.LineData, 0, len(r.Rewards))
		for _, v := range r.Rewards {
			items = append(items, opts.LineData{Value: v})
		}
		line.AddSeries(r.Name, items)
	}

	page := components.NewPage()
	page.AddCharts(
		line,
	)
	return page.Render(w)
}
