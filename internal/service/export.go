package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/gomersimpson131212-create/reviews-telegram-bot/internal/repository"
)

// ExportHeader is the first row of every export.
var ExportHeader = []string{
	"id", "user_id", "rating", "communication", "delivery",
	"name", "text", "photo_ref", "date", "state",
}

// ExportDateLayout formats the date column, always in UTC.
const ExportDateLayout = "2006-01-02 15:04:05"

// Exporter renders every stored review as CSV.
type Exporter struct {
	repo repository.ReviewRepository
	now  func() time.Time
}

// NewExporter creates an exporter.
func NewExporter(repo repository.ReviewRepository) *Exporter {
	return &Exporter{repo: repo, now: time.Now}
}

// WriteCSV writes the header and one row per review in insertion order. It
// returns the number of reviews written.
func (e *Exporter) WriteCSV(ctx context.Context, w io.Writer) (int, error) {
	reviews, err := e.repo.All(ctx)
	if err != nil {
		return 0, fmt.Errorf("export reviews: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(ExportHeader); err != nil {
		return 0, fmt.Errorf("write csv header: %w", err)
	}

	for i := range reviews {
		r := &reviews[i]
		row := []string{
			strconv.FormatInt(r.ID, 10),
			strconv.FormatInt(r.UserID, 10),
			strconv.Itoa(r.Rating),
			strconv.Itoa(r.Communication),
			strconv.Itoa(r.Delivery),
			r.Name,
			r.Text,
			r.PhotoRef,
			r.SubmittedAt.UTC().Format(ExportDateLayout),
			string(r.State),
		}
		if err := cw.Write(row); err != nil {
			return 0, fmt.Errorf("write csv row %d: %w", r.ID, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, fmt.Errorf("flush csv: %w", err)
	}
	return len(reviews), nil
}

// Export renders the CSV in memory and suggests a file name.
func (e *Exporter) Export(ctx context.Context) (name string, data []byte, count int, err error) {
	var buf bytes.Buffer
	count, err = e.WriteCSV(ctx, &buf)
	if err != nil {
		return "", nil, 0, err
	}
	name = fmt.Sprintf("reviews-%s.csv", e.now().UTC().Format("20060102-150405"))
	return name, buf.Bytes(), count, nil
}
