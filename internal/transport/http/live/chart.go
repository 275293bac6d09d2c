package livehttp

import (
	"bytes"
	"fmt"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"arena/internal/agent"
)

const (
	colorBackground    = "#060c1b"
	colorTextPrimary   = "#eceff4"
	colorTextSecondary = "#9ca3af"
	colorEquity        = "#34d399"
	colorBaseline      = "#9ca3af"
)

// renderEquityChart draws the agent's equity curve against its starting cash.
func renderEquityChart(st agent.AgentState) ([]byte, error) {
	curve := st.Portfolio.EquityCurve
	xAxis := make([]string, len(curve))
	equity := make([]opts.LineData, len(curve))
	baseline := make([]opts.LineData, len(curve))
	for i, pt := range curve {
		xAxis[i] = pt.At.UTC().Format(time.DateTime)
		equity[i] = opts.LineData{Value: pt.Equity}
		baseline[i] = opts.LineData{Value: st.Portfolio.InitialCash}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle:       fmt.Sprintf("%s equity", st.Name),
			Width:           "1200px",
			Height:          "520px",
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:         st.Name,
			Subtitle:      fmt.Sprintf("%s | return %.2f%% | sharpe %.4f", st.ProviderID, st.Portfolio.TotalReturnPercent, st.Portfolio.SharpeRatio),
			TitleStyle:    &opts.TextStyle{Color: colorTextPrimary, FontSize: 18},
			SubtitleStyle: &opts.TextStyle{Color: colorTextSecondary},
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithXAxisOpts(opts.XAxis{
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(false)},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.2)}},
		}),
	)
	line.SetXAxis(xAxis).
		AddSeries("Equity", equity,
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
			charts.WithLineStyleOpts(opts.LineStyle{Color: colorEquity, Width: 2})).
		AddSeries("Initial cash", baseline,
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
			charts.WithLineStyleOpts(opts.LineStyle{Color: colorBaseline, Width: 1, Type: "dashed"}))

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
