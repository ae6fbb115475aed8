package landcover

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/swc-cli/internal/fetcher"
)

// BootstrapOptions configures where tiles come from. Tiles are tile packs or
// ESRI Land Cover GeoTIFFs.
type BootstrapOptions struct {
	Dir string

	// ReleaseAPI is a GitHub "get release" API URL whose assets are tiles or
	// zip archives of tiles.
	ReleaseAPI  string
	GitHubToken string

	// FTPURL is a directory on an FTP mirror. It takes precedence over
	// ReleaseAPI when both are set.
	FTPURL string

	Timeout time.Duration
}

// Bootstrapper downloads tiles into an empty land-cover directory.
type Bootstrapper struct {
	opts BootstrapOptions
	http *fetcher.HTTPFetcher
	ftp  *fetcher.FTPFetcher
}

// NewBootstrapper creates a Bootstrapper.
func NewBootstrapper(opts BootstrapOptions) *Bootstrapper {
	headers := map[string]string{"Accept": "application/vnd.github+json"}
	if tok := strings.TrimSpace(opts.GitHubToken); tok != "" {
		headers["Authorization"] = "Bearer " + tok
	}
	return &Bootstrapper{
		opts: opts,
		http: fetcher.NewHTTPFetcher(fetcher.HTTPOptions{Timeout: opts.Timeout, Headers: headers}),
		ftp:  fetcher.NewFTPFetcher(fetcher.FTPOptions{Timeout: opts.Timeout}),
	}
}

// HasTiles reports whether dir already holds at least one tile.
func HasTiles(dir string) (bool, error) {
	sources, err := Discover(dir)
	return len(sources) > 0, err
}

type releaseAsset struct {
	Name string `json:"name"`
	URL  string `json:"browser_download_url"`
}

// Ensure makes sure the land-cover directory holds tiles. It does nothing
// when tiles are already present and returns the paths it wrote otherwise.
func (b *Bootstrapper) Ensure(ctx context.Context) ([]string, error) {
	ok, err := HasTiles(b.opts.Dir)
	if err != nil {
		return nil, err
	}
	if ok {
		zap.L().Debug("landcover: tiles present, skipping bootstrap", zap.String("dir", b.opts.Dir))
		return nil, nil
	}
	if err := os.MkdirAll(b.opts.Dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "landcover: create %s", b.opts.Dir)
	}

	var written []string
	switch {
	case strings.TrimSpace(b.opts.FTPURL) != "":
		written, err = b.fromFTP(ctx, strings.TrimSpace(b.opts.FTPURL))
	case strings.TrimSpace(b.opts.ReleaseAPI) != "":
		written, err = b.fromRelease(ctx, strings.TrimSpace(b.opts.ReleaseAPI))
	default:
		return nil, eris.New("landcover: no release_api or ftp_url configured")
	}
	if err != nil {
		return written, err
	}

	if ok, err := HasTiles(b.opts.Dir); err != nil || !ok {
		return written, eris.Errorf("landcover: bootstrap left no tiles in %s", b.opts.Dir)
	}
	zap.L().Info("landcover: bootstrap complete",
		zap.String("dir", b.opts.Dir),
		zap.Int("files", len(written)),
	)
	return written, nil
}

func (b *Bootstrapper) fromRelease(ctx context.Context, api string) ([]string, error) {
	var release struct {
		Assets []releaseAsset `json:"assets"`
	}
	if err := b.http.GetJSON(ctx, api, &release); err != nil {
		return nil, eris.Wrap(err, "landcover: fetch release metadata")
	}

	var assets []releaseAsset
	for _, a := range release.Assets {
		if IsTileName(a.Name) || isZipName(a.Name) {
			assets = append(assets, a)
		}
	}
	if len(assets) == 0 {
		return nil, eris.New("landcover: no tile assets in release")
	}
	sort.Slice(assets, func(i, j int) bool { return assets[i].Name < assets[j].Name })

	zap.L().Info("landcover: downloading release assets", zap.Int("assets", len(assets)))
	var written []string
	for _, a := range assets {
		paths, err := b.install(ctx, a.Name, func(dest string) error {
			_, err := b.http.DownloadToFile(ctx, a.URL, dest)
			return err
		})
		written = append(written, paths...)
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

func (b *Bootstrapper) fromFTP(ctx context.Context, dirURL string) ([]string, error) {
	names, err := b.ftp.List(ctx, dirURL)
	if err != nil {
		return nil, eris.Wrap(err, "landcover: list ftp mirror")
	}
	sort.Strings(names)

	base := strings.TrimSuffix(dirURL, "/")
	var written []string
	for _, name := range names {
		if !IsTileName(name) && !isZipName(name) {
			continue
		}
		paths, err := b.install(ctx, name, func(dest string) error {
			_, err := b.ftp.DownloadToFile(ctx, base+"/"+name, dest)
			return err
		})
		written = append(written, paths...)
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// install downloads one asset unless it is already present. Zip archives are
// downloaded to a temporary file and their tiles extracted.
func (b *Bootstrapper) install(ctx context.Context, name string, download func(dest string) error) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "landcover: bootstrap cancelled")
	}
	name = filepath.Base(name)

	if !isZipName(name) {
		dest := filepath.Join(b.opts.Dir, name)
		if _, err := os.Stat(dest); err == nil {
			return nil, nil
		}
		zap.L().Info("landcover: downloading", zap.String("asset", name))
		if err := download(dest); err != nil {
			return nil, eris.Wrapf(err, "landcover: download %s", name)
		}
		return []string{dest}, nil
	}

	tmp, err := os.MkdirTemp("", "swc-landcover-")
	if err != nil {
		return nil, eris.Wrap(err, "landcover: temp dir")
	}
	defer os.RemoveAll(tmp) //nolint:errcheck

	archive := filepath.Join(tmp, name)
	zap.L().Info("landcover: downloading archive", zap.String("asset", name))
	if err := download(archive); err != nil {
		return nil, eris.Wrapf(err, "landcover: download %s", name)
	}
	paths, err := fetcher.ExtractZIP(archive, b.opts.Dir, IsTileName)
	if err != nil {
		return paths, eris.Wrapf(err, "landcover: extract %s", name)
	}
	return paths, nil
}

func isZipName(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".zip")
}
