package grader

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"github.com/disintegration/imaging"
	"github.com/speaknowly/speaknowly-api/model"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

const (
	chartWidth  = 1024
	chartHeight = 576
)

// ChartRenderer draws the Writing Task 1 diagram as a PNG
type ChartRenderer interface {
	Render(data ChartData) ([]byte, error)
}

// GoChartRenderer renders diagrams with go-chart
type GoChartRenderer struct{}

// NewChartRenderer creates the default renderer
func NewChartRenderer() *GoChartRenderer {
	return &GoChartRenderer{}
}

var seriesColors = []drawing.Color{
	{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff},
	{R: 0xff, G: 0x7f, B: 0x0e, A: 0xff},
}

// Render draws data as the requested chart type
func (r *GoChartRenderer) Render(data ChartData) ([]byte, error) {
	if err := data.validate("render_chart"); err != nil {
		return nil, err
	}

	switch data.ChartType {
	case model.ChartBar:
		return renderBar(data)
	case model.ChartLine:
		return renderLine(data)
	case model.ChartPie:
		return renderPies(data)
	}
	return nil, fmt.Errorf("unsupported chart type %q", data.ChartType)
}

func renderBar(data ChartData) ([]byte, error) {
	bars := make([]chart.Value, 0, 2*len(data.Categories))
	for i, category := range data.Categories {
		bars = append(bars,
			chart.Value{
				Label: fmt.Sprintf("%s %d", category, data.Year1),
				Value: data.DataYear1[i],
				Style: chart.Style{FillColor: seriesColors[0], StrokeColor: seriesColors[0]},
			},
			chart.Value{
				Label: fmt.Sprintf("%s %d", category, data.Year2),
				Value: data.DataYear2[i],
				Style: chart.Style{FillColor: seriesColors[1], StrokeColor: seriesColors[1]},
			},
		)
	}

	graph := chart.BarChart{
		Title:      fmt.Sprintf("%d vs %d", data.Year1, data.Year2),
		Background: chart.Style{Padding: chart.Box{Top: 40, Bottom: 20}},
		Width:      chartWidth,
		Height:     chartHeight,
		BarWidth:   (chartWidth - 160) / len(bars),
		Bars:       bars,
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("failed to render bar chart: %w", err)
	}
	return buf.Bytes(), nil
}

func renderLine(data ChartData) ([]byte, error) {
	xs := make([]float64, len(data.Categories))
	ticks := make([]chart.Tick, len(data.Categories))
	for i, category := range data.Categories {
		xs[i] = float64(i)
		ticks[i] = chart.Tick{Value: float64(i), Label: category}
	}

	graph := chart.Chart{
		Title:      fmt.Sprintf("%d vs %d", data.Year1, data.Year2),
		Width:      chartWidth,
		Height:     chartHeight,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 20, Right: 20}},
		XAxis:      chart.XAxis{Ticks: ticks},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    fmt.Sprintf("%d", data.Year1),
				XValues: xs,
				YValues: data.DataYear1,
				Style:   chart.Style{StrokeColor: seriesColors[0], StrokeWidth: 3},
			},
			chart.ContinuousSeries{
				Name:    fmt.Sprintf("%d", data.Year2),
				XValues: xs,
				YValues: data.DataYear2,
				Style:   chart.Style{StrokeColor: seriesColors[1], StrokeWidth: 3},
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("failed to render line chart: %w", err)
	}
	return buf.Bytes(), nil
}

// renderPies draws one pie per year and places them side by side
func renderPies(data ChartData) ([]byte, error) {
	left, err := renderPie(data.Categories, data.DataYear1, data.Year1)
	if err != nil {
		return nil, err
	}
	right, err := renderPie(data.Categories, data.DataYear2, data.Year2)
	if err != nil {
		return nil, err
	}

	canvas := imaging.New(chartWidth, chartHeight, color.White)
	canvas = imaging.Paste(canvas, left, image.Pt(0, 0))
	canvas = imaging.Paste(canvas, right, image.Pt(chartWidth/2, 0))

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("failed to encode pie chart: %w", err)
	}
	return buf.Bytes(), nil
}

func renderPie(categories []string, values []float64, year int) (image.Image, error) {
	slices := make([]chart.Value, 0, len(values))
	for i, v := range values {
		if v == 0 {
			continue
		}
		slices = append(slices, chart.Value{Label: categories[i], Value: v})
	}
	if len(slices) == 0 {
		return nil, fmt.Errorf("pie chart for %d has no non-zero values", year)
	}

	graph := chart.PieChart{
		Title:  fmt.Sprintf("%d", year),
		Width:  chartWidth / 2,
		Height: chartHeight,
		Values: slices,
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("failed to render pie chart: %w", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		return nil, fmt.Errorf("failed to decode pie chart: %w", err)
	}
	return img, nil
}
