package views

import (
	"errors"
	"html/template"
	"io"
	"io/fs"
	"net/url"

	"github.com/kjstillabower/sensor-dashboard/internal/aggregate"
	"github.com/kjstillabower/sensor-dashboard/internal/charts"
	"github.com/kjstillabower/sensor-dashboard/internal/export"
	"github.com/kjstillabower/sensor-dashboard/internal/models"
	"github.com/kjstillabower/sensor-dashboard/internal/pipeline"
	"github.com/kjstillabower/sensor-dashboard/internal/service"
)

var dashboardTmpl *template.Template

var funcs = template.FuncMap{
	// Chart SVG comes from the charts package, which escapes every text node.
	"svg": func(s string) template.HTML { return template.HTML(s) },
}

// loadTemplatesFromFS loads dashboard templates from the given fs and dir.
// Used by LoadTemplates and by tests to simulate failure scenarios.
func loadTemplatesFromFS(fsys fs.FS, dir string) error {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		return err
	}
	dashboardTmpl, err = template.New("").Funcs(funcs).ParseFS(sub, "*.html", "partials/*.html")
	if err != nil {
		return err
	}
	return nil
}

// LoadTemplates loads embedded dashboard templates. Call during startup before
// serving requests; if it returns an error, do not start the server.
func LoadTemplates() error {
	return loadTemplatesFromFS(viewsFS, "templates")
}

// Option is one entry of a multi-select.
type Option struct {
	Value    string
	Selected bool
}

// Filter is the view model for one cascade multi-select.
type Filter struct {
	Key     string
	Label   string
	Options []Option
	In      int
	Out     int
}

// Download is a link to one exported table.
type Download struct {
	Label string
	URL   string
}

// Section groups the four charts of one variable.
type Section struct {
	Key       string
	Title     string
	Charts    []charts.Chart
	Downloads []Download
}

// DashboardData is the view model for the dashboard page.
type DashboardData struct {
	DatasetID  string
	SourceName string
	SourceKind string
	Rows       int
	Dropped    int
	Filtered   int
	HasData    bool
	MinDate    string
	MaxDate    string
	Start      string
	End        string
	Filters    []Filter
	Sections   []Section
}

// ErrorData is the view model for the error page.
type ErrorData struct {
	Status    int
	Code      string
	Message   string
	RequestID string
}

// BuildDashboard turns a render pass into the page view model. query is the
// normalized request query, reused for download links.
func BuildDashboard(d service.Dashboard, query url.Values) (*DashboardData, error) {
	data := &DashboardData{
		DatasetID:  d.Source.ID,
		SourceName: d.Source.Name,
		SourceKind: d.Source.Kind,
		Rows:       d.Rows,
		Dropped:    d.Dropped,
		Filtered:   d.Cascade.Filtered.Len(),
		HasData:    d.HasData,
	}
	if d.HasData {
		data.MinDate = d.Bounds.Start.Format(pipeline.DateLayout)
		data.MaxDate = d.Bounds.End.Format(pipeline.DateLayout)
		data.Start = d.Range.Start.Format(pipeline.DateLayout)
		data.End = d.Range.End.Format(pipeline.DateLayout)
	}

	for _, st := range d.Cascade.Stages {
		chosen := make(map[string]bool, len(st.Selected))
		for _, s := range st.Selected {
			chosen[s] = true
		}
		f := Filter{Key: st.Level.Key(), Label: st.Level.String(), In: st.In, Out: st.Out}
		for _, o := range st.Options {
			f.Options = append(f.Options, Option{Value: o, Selected: chosen[o]})
		}
		data.Filters = append(data.Filters, f)
	}

	encoded := query.Encode()
	for _, r := range d.Reports {
		sec := Section{Key: r.Variable.Key(), Title: r.Variable.Section()}
		for _, build := range []func(aggregate.Report) (charts.Chart, error){
			charts.Distribution, charts.ByDistrict, charts.Frequency, charts.Monthly,
		} {
			c, err := build(r)
			if err != nil {
				return nil, err
			}
			sec.Charts = append(sec.Charts, c)
		}
		for _, table := range []string{export.TableWeibull, export.TableRegion, export.TableWorkbook} {
			name, err := export.FileName(r.Variable, table)
			if err != nil {
				return nil, err
			}
			sec.Downloads = append(sec.Downloads, Download{
				Label: name,
				URL:   downloadURL(r.Variable, table, encoded),
			})
		}
		data.Sections = append(data.Sections, sec)
	}
	return data, nil
}

func downloadURL(v models.Variable, table, encodedQuery string) string {
	u := "/download/" + v.Key() + "/" + table
	if encodedQuery != "" {
		u += "?" + encodedQuery
	}
	return u
}

// RenderDashboard executes the dashboard page into w.
func RenderDashboard(w io.Writer, data *DashboardData) error {
	if dashboardTmpl == nil {
		return errors.New("dashboard template not loaded: call views.LoadTemplates during startup")
	}
	return dashboardTmpl.ExecuteTemplate(w, "dashboard.html", data)
}

// RenderError executes the error page into w.
func RenderError(w io.Writer, data *ErrorData) error {
	if dashboardTmpl == nil {
		return errors.New("error template not loaded: call views.LoadTemplates during startup")
	}
	return dashboardTmpl.ExecuteTemplate(w, "error.html", data)
}
