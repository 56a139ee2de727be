package nsrdb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"gridetl/internal/domain"
	"gridetl/internal/gather"
	"gridetl/internal/metrics"
	"gridetl/internal/store"
	"gridetl/internal/util"
)

// Fetcher drives the two NSRDB steps: Queue sends one request per city and
// year and records the outcome in the ledger; DownloadPending fetches every
// queued file. Both are resumable: completed work in the ledger is skipped.
type Fetcher struct {
	Client      *Client
	Ledger      store.RequestLedger
	Limiter     *util.RateLimiter
	RawDir      string
	ZipCacheDir string
	MaxWorkers  int
	Force       bool // re-request files that are already queued or done
	Metrics     *metrics.Metrics
	Log         *slog.Logger
}

func (f *Fetcher) logger() *slog.Logger {
	if f.Log == nil {
		return slog.Default()
	}
	return f.Log
}

// ---------------------------------------------------------------------------
// Queue
// ---------------------------------------------------------------------------

// Queue requests every (year, region, city). Per-request failures are logged
// and recorded in the ledger; only context cancellation or ledger errors
// stop the loop.
func (f *Fetcher) Queue(ctx context.Context, years []int, regions []domain.Region) (*gather.Tally, error) {
	tally := &gather.Tally{}
	for _, year := range years {
		f.logger().Info("requesting year", "year", year)
		for _, region := range regions {
			for _, city := range region.Cities {
				if err := f.queueOne(ctx, year, region.Name, city, tally); err != nil {
					return tally, err
				}
			}
		}
	}
	f.logger().Info("queue complete", "requested", tally.Items(), "failed", tally.Failures())
	return tally, nil
}

func (f *Fetcher) queueOne(ctx context.Context, year int, region string, city domain.City, tally *gather.Tally) error {
	log := f.logger().With("year", year, "region", region, "city", city.Name)

	if !f.Force {
		prev, err := f.Ledger.GetRequest(ctx, year, region, city.Name)
		switch {
		case err == nil && (prev.Status == domain.StatusDone || prev.Status == domain.StatusQueued):
			log.Debug("already requested", "status", prev.Status)
			return nil
		case err != nil && !errors.Is(err, store.ErrNotFound):
			return err
		}
	}

	if err := f.Limiter.Wait(ctx); err != nil {
		return err
	}

	rec := &domain.NSRDBRequest{Year: year, Region: region, City: city.Name}
	resp, err := f.Client.Request(ctx, Query{Year: year, City: city})
	switch {
	case err != nil:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("request failed", "error", err)
		rec.Status, rec.Message = domain.StatusFailed, err.Error()
		f.Metrics.Request("failed")
		tally.Fail()

	case resp.Immediate():
		path, err := f.saveImmediate(year, region, city.Name, resp.Body)
		if err != nil {
			log.Warn("saving immediate file failed", "error", err)
			rec.Status, rec.Message = domain.StatusFailed, err.Error()
			f.Metrics.Request("failed")
			tally.Fail()
			break
		}
		log.Info("file returned immediately", "path", path)
		rec.Status, rec.FilePath = domain.StatusDone, path
		f.Metrics.Request("immediate")
		tally.Ok()

	case resp.DownloadURL == "":
		log.Warn("accepted without download url", "message", resp.Message)
		rec.Status, rec.Message = domain.StatusMissing, resp.Message
		f.Metrics.Request("missing")
		tally.Fail()

	default:
		log.Info("queued", "message", resp.Message)
		rec.Status, rec.DownloadURL, rec.Message = domain.StatusQueued, resp.DownloadURL, resp.Message
		f.Metrics.Request("deferred")
		tally.Ok()
	}

	return f.Ledger.SaveRequest(ctx, rec)
}

// saveImmediate keeps the returned archive in the zip cache and writes the
// CSV it holds to the raw directory.
func (f *Fetcher) saveImmediate(year int, region, city string, body []byte) (string, error) {
	if f.ZipCacheDir != "" && isZip(body) {
		name := fmt.Sprintf("nsrdb_%d_%s_%s.zip", year, region, city)
		if err := writeFile(filepath.Join(f.ZipCacheDir, name), body); err != nil {
			return "", err
		}
	}
	return f.writeRaw(year, region, city, body)
}

// ---------------------------------------------------------------------------
// DownloadPending
// ---------------------------------------------------------------------------

// DownloadPending downloads every queued or previously failed request that
// has a URL, writes its CSV and marks it done. Requests without a URL are
// warned about and skipped.
func (f *Fetcher) DownloadPending(ctx context.Context) (*gather.Tally, error) {
	all, err := f.Ledger.ListRequests(ctx, "")
	if err != nil {
		return nil, err
	}

	var pending []domain.NSRDBRequest
	for _, r := range all {
		switch {
		case r.Status == domain.StatusDone:
		case r.DownloadURL == "":
			f.logger().Warn("no url", "year", r.Year, "region", r.Region, "city", r.City, "status", r.Status)
		default:
			pending = append(pending, r)
		}
	}
	f.logger().Info("downloading", "pending", len(pending))

	tally := &gather.Tally{}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(f.MaxWorkers, 1))
	for _, r := range pending {
		g.Go(func() error {
			return f.downloadOne(gctx, r, tally)
		})
	}
	if err := g.Wait(); err != nil {
		return tally, err
	}
	f.logger().Info("downloads complete", "written", tally.Items(), "failed", tally.Failures())
	return tally, nil
}

func (f *Fetcher) downloadOne(ctx context.Context, r domain.NSRDBRequest, tally *gather.Tally) error {
	log := f.logger().With("file", FileName(r.Year, r.Region, r.City))
	log.Info("downloading")

	path, err := f.fetchAndWrite(ctx, r)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("download failed", "error", err)
		r.Status, r.Message = domain.StatusFailed, err.Error()
		f.Metrics.Download("failed")
		tally.Fail()
	} else {
		r.Status, r.FilePath, r.Message = domain.StatusDone, path, ""
		f.Metrics.Download("ok")
		tally.Ok()
	}
	r.UpdatedAt = time.Time{}
	return f.Ledger.SaveRequest(ctx, &r)
}

func (f *Fetcher) fetchAndWrite(ctx context.Context, r domain.NSRDBRequest) (string, error) {
	body, err := f.Client.Download(ctx, r.DownloadURL)
	if err != nil {
		return "", err
	}
	return f.writeRaw(r.Year, r.Region, r.City, body)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// writeRaw writes the CSV held in body (a ZIP, or the CSV itself) to its raw
// path and returns that path.
func (f *Fetcher) writeRaw(year int, region, city string, body []byte) (string, error) {
	data := body
	if isZip(body) {
		var err error
		if data, err = Unzip(body); err != nil {
			return "", err
		}
	}
	path := RawPath(f.RawDir, year, region, city)
	if err := writeFile(path, data); err != nil {
		return "", err
	}
	return path, nil
}

func isZip(b []byte) bool {
	return bytes.HasPrefix(b, []byte("PK\x03\x04"))
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// WriteURLIndex writes the ledger's download URLs as a JSON object keyed by
// year, region and city. Requests without a URL map to null.
func WriteURLIndex(ctx context.Context, ledger store.RequestLedger, path string) error {
	reqs, err := ledger.ListRequests(ctx, "")
	if err != nil {
		return err
	}
	index := make(map[string]map[string]map[string]*string)
	for _, r := range reqs {
		year := strconv.Itoa(r.Year)
		if index[year] == nil {
			index[year] = make(map[string]map[string]*string)
		}
		if index[year][r.Region] == nil {
			index[year][r.Region] = make(map[string]*string)
		}
		var u *string
		if r.DownloadURL != "" {
			u = &r.DownloadURL
		}
		index[year][r.Region][r.City] = u
	}

	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return err
	}
	return writeFile(path, append(data, '\n'))
}
