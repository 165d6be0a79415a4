package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/banshee-data/citysense/internal/db"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// ShockChart builds a scatter of magnitude against uptime in seconds.
func ShockChart(st db.Stats) *charts.Scatter {
	data := make([]opts.ScatterData, 0, len(st.Magnitudes))
	for i, m := range st.Magnitudes {
		data = append(data, opts.ScatterData{Value: []interface{}{st.Uptimes[i] / 1000, m}})
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "CitySense shocks", Width: "900px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: "Road shocks", Subtitle: fmt.Sprintf("events=%d", len(data))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Uptime (s)", NameLocation: "middle", NameGap: 25, Type: "value"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Shock", NameLocation: "middle", NameGap: 45, Type: "value"}),
	)
	scatter.AddSeries("shock", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))
	return scatter
}

func (s *Server) showChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	st, err := s.store.Stats()
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to retrieve stats: %v", err), http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := ShockChart(st).Render(&buf); err != nil {
		http.Error(w, fmt.Sprintf("failed to render chart: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
