package simple

import (
	"bufio"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"log/slog"
	"math"
	"mime"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"

	packageindex "github.com/wolfeidau/package-index"
	"github.com/wolfeidau/package-index/catalog"
	"github.com/wolfeidau/package-index/filename"
	"github.com/wolfeidau/package-index/storage"
	"github.com/wolfeidau/package-index/telemetry"
)

// DefaultMaxUploadSize is the largest accepted upload (100MB).
const DefaultMaxUploadSize int64 = 100 << 20

// uploadField is the multipart form field carrying the archive.
const uploadField = "content"

// Handler serves the simple index, file downloads, uploads and the JSON API
// for one catalog.
type Handler struct {
	svc           *catalog.Service
	store         storage.Store
	logger        *slog.Logger
	maxUploadSize int64
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithLogger sets the logger for the handler.
func WithLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithMaxUploadSize bounds the size of an upload request body.
func WithMaxUploadSize(n int64) HandlerOption {
	return func(h *Handler) {
		if n > 0 {
			h.maxUploadSize = n
		}
	}
}

// NewHandler creates a handler over svc. Uploads and downloads go through
// store, which must share the catalog's root.
func NewHandler(svc *catalog.Service, store storage.Store, opts ...HandlerOption) *Handler {
	h := &Handler{
		svc:           svc,
		store:         store,
		logger:        slog.Default(),
		maxUploadSize: DefaultMaxUploadSize,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Path

	if p == "/upload" {
		telemetry.SetRoute(r, "upload")
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.handleUpload(w, r)
		return
	}

	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	switch {
	case p == "/":
		http.Redirect(w, r, "/simple/", http.StatusFound)

	// Route: /simple/ - root index
	case p == "/simple":
		http.Redirect(w, r, "/simple/", http.StatusMovedPermanently)
	case p == "/simple/":
		telemetry.SetRoute(r, "simple")
		h.handleRoot(w, r)

	// Route: /simple/{project}/ - project page
	case strings.HasPrefix(p, "/simple/"):
		telemetry.SetRoute(r, "simple")
		ep := r.URL.EscapedPath()
		if !strings.HasSuffix(ep, "/") {
			http.Redirect(w, r, ep+"/", http.StatusMovedPermanently)
			return
		}
		// Split on the escaped path so an encoded slash stays in the name.
		raw := strings.TrimSuffix(strings.TrimPrefix(ep, "/simple/"), "/")
		if raw == "" || strings.Contains(raw, "/") {
			http.NotFound(w, r)
			return
		}
		project, err := url.PathUnescape(raw)
		if err != nil || project == "" {
			http.NotFound(w, r)
			return
		}
		h.handleProject(w, r, project)

	// Route: /packages/{path...} - file download
	case strings.HasPrefix(p, "/packages/"):
		telemetry.SetRoute(r, "packages")
		h.handleFile(w, r, strings.TrimPrefix(p, "/packages/"))

	case p == "/search":
		telemetry.SetRoute(r, "api")
		h.handleSearch(w, r)
	case p == "/api/packages" || p == "/api/packages/":
		telemetry.SetRoute(r, "api")
		h.handleAPIPackages(w, r)
	case strings.HasPrefix(p, "/api/packages/"):
		telemetry.SetRoute(r, "api")
		h.handleAPIPackage(w, r, strings.TrimSuffix(strings.TrimPrefix(p, "/api/packages/"), "/"))
	case p == "/api/stats":
		telemetry.SetRoute(r, "api")
		h.handleAPIStats(w, r)

	default:
		http.NotFound(w, r)
	}
}

// handleRoot lists every project in the catalog.
func (h *Handler) handleRoot(w http.ResponseWriter, r *http.Request) {
	telemetry.SetEndpoint(r, "root")
	logger := h.logger.With("endpoint", "root")

	names, err := h.svc.Names(r.Context())
	if err != nil {
		logger.Error("failed to list projects", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if wantsJSON(r) {
		h.writeRootJSON(w, names)
	} else {
		h.writeRootHTML(w, names)
	}
}

// handleProject lists the files of one project.
func (h *Handler) handleProject(w http.ResponseWriter, r *http.Request, project string) {
	telemetry.SetEndpoint(r, "project")
	telemetry.SetPackage(r, project)
	ctx := r.Context()
	logger := h.logger.With("project", project, "endpoint", "project")

	key, files, err := h.svc.Project(ctx, project)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		logger.Error("failed to list files", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if key != project {
		http.Redirect(w, r, projectURL(key), http.StatusMovedPermanently)
		return
	}

	projectFiles := make([]ProjectFile, 0, len(files))
	for _, f := range files {
		projectFiles = append(projectFiles, toProjectFile(f))
	}

	if wantsJSON(r) {
		h.writeProjectJSON(w, key, projectFiles)
	} else {
		h.writeProjectHTML(w, key, projectFiles)
	}
}

func toProjectFile(f *catalog.PackageFile) ProjectFile {
	pf := ProjectFile{
		Filename:       f.Filename,
		URL:            packageURL(f.Path),
		Hashes:         map[string]string{},
		RequiresPython: f.RequiresPython,
		Size:           f.Size,
	}
	d := f.Digests()
	if d.SHA256 != "" {
		pf.Hashes["sha256"] = d.SHA256
	}
	if d.MD5 != "" {
		pf.Hashes["md5"] = d.MD5
	}
	return pf
}

// projectURL returns the project page URL for a catalog name.
func projectURL(name string) string {
	return "/simple/" + url.PathEscape(name) + "/"
}

// packageURL returns the download URL for a root-relative file path.
func packageURL(rel string) string {
	segments := strings.Split(rel, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return "/packages/" + strings.Join(segments, "/")
}

// handleFile serves an archive. Bare filenames not found at the root are
// looked up anywhere in the catalog.
func (h *Handler) handleFile(w http.ResponseWriter, r *http.Request, name string) {
	telemetry.SetEndpoint(r, "download")
	ctx := r.Context()
	logger := h.logger.With("file", name, "endpoint", "download")

	clean, err := storage.CleanName(name)
	if err != nil || !filename.IsArchive(path.Base(clean)) {
		http.NotFound(w, r)
		return
	}

	f, err := h.store.Open(ctx, clean)
	if errors.Is(err, storage.ErrNotFound) && !strings.Contains(clean, "/") {
		if found, ferr := h.svc.FindFile(ctx, clean); ferr == nil {
			clean = found.Path
			f, err = h.store.Open(ctx, clean)
		}
	}
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		logger.Error("failed to open file", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		logger.Error("failed to stat file", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if pf, err := h.svc.Builder().Inspect(ctx, clean); err == nil && pf.ContentHash != "" {
		w.Header().Set("ETag", `"`+pf.ContentHash+`"`)
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": path.Base(clean)}))
	http.ServeContent(w, r, path.Base(clean), info.ModTime(), f)
}

// handleUpload accepts one archive in the "content" multipart field.
func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	telemetry.SetEndpoint(r, "upload")
	ctx := r.Context()
	logger := h.logger.With("endpoint", "upload")

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)

	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}

	var part io.ReadCloser
	var original string
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			if isTooLarge(err) {
				telemetry.RecordUpload(ctx, "", "too_large", 0)
				writeError(w, http.StatusRequestEntityTooLarge, "File too large")
				return
			}
			writeError(w, http.StatusBadRequest, "No file uploaded")
			return
		}
		if p.FormName() == uploadField {
			part, original = p, p.FileName()
			break
		}
		_ = p.Close()
	}
	if part == nil {
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer func() { _ = part.Close() }()

	if original == "" {
		writeError(w, http.StatusBadRequest, "No file selected")
		return
	}
	if !filename.IsArchive(original) {
		writeError(w, http.StatusBadRequest, "Only .whl and .tar.gz files are supported")
		return
	}
	name := SecureFilename(original)
	kind := string(filename.Kind(name))
	if !filename.IsArchive(name) {
		writeError(w, http.StatusBadRequest, "Only .whl and .tar.gz files are supported")
		return
	}
	logger = logger.With("filename", name)

	br := bufio.NewReader(part)
	if _, err := br.Peek(1); err != nil {
		if isTooLarge(err) {
			telemetry.RecordUpload(ctx, kind, "too_large", 0)
			writeError(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		telemetry.RecordUpload(ctx, kind, "empty", 0)
		writeError(w, http.StatusBadRequest, "Empty file")
		return
	}

	res, err := h.store.Write(ctx, name, br, false)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrExists):
			telemetry.RecordUpload(ctx, kind, "exists", 0)
			writeError(w, http.StatusConflict, "File already exists")
		case isTooLarge(err):
			telemetry.RecordUpload(ctx, kind, "too_large", 0)
			writeError(w, http.StatusRequestEntityTooLarge, "File too large")
		case errors.Is(err, storage.ErrInvalidName):
			telemetry.RecordUpload(ctx, kind, "invalid", 0)
			writeError(w, http.StatusBadRequest, "Invalid filename")
		default:
			telemetry.RecordUpload(ctx, kind, "error", 0)
			logger.Error("failed to store upload", "error", err)
			writeError(w, http.StatusInternalServerError, "Upload failed")
		}
		return
	}

	pf, err := h.svc.Builder().Inspect(ctx, res.Name)
	if err != nil {
		telemetry.RecordUpload(ctx, kind, "error", res.Size)
		logger.Error("failed to inspect upload", "error", err)
		writeError(w, http.StatusInternalServerError, "Upload failed")
		return
	}

	telemetry.RecordUpload(ctx, kind, "ok", res.Size)
	telemetry.SetPackage(r, pf.Name)
	logger.Info("package uploaded", "name", pf.Name, "version", pf.Version, "size", res.Size)

	writeJSON(w, http.StatusOK, UploadResponse{
		Message:     "Package uploaded successfully",
		Filename:    name,
		Size:        res.Size,
		PackageInfo: newPackageFile(pf),
	})
}

func isTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// SecureFilename reduces an uploaded filename to a safe base name: path
// components are dropped, whitespace becomes underscores and anything outside
// [A-Za-z0-9_.-] is removed, as are leading dots and underscores.
func SecureFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)
	name = strings.Join(strings.Fields(name), "_")
	name = unsafeFilenameChars.ReplaceAllString(name, "")
	return strings.TrimLeft(name, "._")
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	telemetry.SetEndpoint(r, "search")

	results, err := h.svc.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.logger.Error("search failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Packages: results})
}

func (h *Handler) handleAPIPackages(w http.ResponseWriter, r *http.Request) {
	telemetry.SetEndpoint(r, "packages")

	cat, err := h.svc.ListAll(r.Context())
	if err != nil {
		h.logger.Error("listing packages failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := make(map[string][]PackageFile, len(cat))
	for name, files := range cat {
		out := make([]PackageFile, 0, len(files))
		for _, f := range files {
			out = append(out, newPackageFile(f))
		}
		resp[name] = out
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleAPIPackage(w http.ResponseWriter, r *http.Request, name string) {
	telemetry.SetEndpoint(r, "package")
	telemetry.SetPackage(r, name)

	files, err := h.svc.ListVersions(r.Context(), name)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Package not found")
			return
		}
		h.logger.Error("listing package failed", "package", name, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	info := PackageInfo{Name: strings.ToLower(name), Files: make([]PackageFile, 0, len(files))}
	if len(files) > 0 {
		info.Name = files[0].Name
	}
	for _, f := range files {
		info.Files = append(info.Files, newPackageFile(f))
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *Handler) handleAPIStats(w http.ResponseWriter, r *http.Request) {
	telemetry.SetEndpoint(r, "stats")

	st, err := h.svc.Stats(r.Context())
	if err != nil {
		h.logger.Error("computing stats failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, StatsResponse{
		Stats:       st,
		TotalSizeMB: math.Round(float64(st.TotalBytes)/(1024*1024)*100) / 100,
	})
}

// wantsJSON checks if the client prefers JSON response.
func wantsJSON(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, ContentTypeJSON)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeRootJSON writes the root index in JSON format.
func (h *Handler) writeRootJSON(w http.ResponseWriter, projects []string) {
	resp := ProjectList{
		Meta:     APIMeta{APIVersion: CurrentAPIVersion},
		Projects: make([]ProjectSummary, 0, len(projects)),
	}
	for _, p := range projects {
		resp.Projects = append(resp.Projects, ProjectSummary{Name: p})
	}

	w.Header().Set("Content-Type", ContentTypeJSON)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to encode JSON response", "error", err)
	}
}

var rootPageTemplate = template.Must(template.New("root").Parse(`<!DOCTYPE html>
<html>
<head><title>Simple index</title></head>
<body>
<h1>Simple index</h1>
{{range .}}<a href="{{.URL}}">{{.Name}}</a><br/>
{{end}}</body>
</html>`))

type rootLink struct {
	Name string
	URL  string
}

// writeRootHTML writes the root index in HTML format.
func (h *Handler) writeRootHTML(w http.ResponseWriter, projects []string) {
	links := make([]rootLink, 0, len(projects))
	for _, p := range projects {
		links = append(links, rootLink{Name: p, URL: projectURL(p)})
	}
	w.Header().Set("Content-Type", ContentTypeHTML)
	if err := rootPageTemplate.Execute(w, links); err != nil {
		h.logger.Error("failed to execute template", "error", err)
	}
}

// writeProjectJSON writes the project page in JSON format.
func (h *Handler) writeProjectJSON(w http.ResponseWriter, project string, files []ProjectFile) {
	resp := ProjectPage{
		Meta:  APIMeta{APIVersion: CurrentAPIVersion},
		Name:  project,
		Files: files,
	}

	w.Header().Set("Content-Type", ContentTypeJSON)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to encode JSON response", "error", err)
	}
}

// projectPageTemplate is the HTML template for project pages.
var projectPageTemplate = template.Must(template.New("project").Parse(`<!DOCTYPE html>
<html>
<head><title>Links for {{.Name}}</title></head>
<body>
<h1>Links for {{.Name}}</h1>
{{range .Files}}<a href="{{.URL}}{{if .HashFragment}}#{{.HashFragment}}{{end}}"{{if .RequiresPython}} data-requires-python="{{.RequiresPython}}"{{end}}>{{.Filename}}</a><br/>
{{end}}</body>
</html>`))

type projectPageData struct {
	Name  string
	Files []fileData
}

type fileData struct {
	URL            string
	Filename       string
	HashFragment   string
	RequiresPython string
}

// writeProjectHTML writes the project page in HTML format.
func (h *Handler) writeProjectHTML(w http.ResponseWriter, project string, files []ProjectFile) {
	data := projectPageData{Name: project}

	for _, f := range files {
		fd := fileData{
			URL:            f.URL,
			Filename:       f.Filename,
			RequiresPython: f.RequiresPython,
		}
		d := packageindex.Digests{SHA256: f.Hashes["sha256"], MD5: f.Hashes["md5"]}
		if algo, sum := d.Strongest(); algo != "" {
			fd.HashFragment = algo + "=" + sum
		}
		data.Files = append(data.Files, fd)
	}

	w.Header().Set("Content-Type", ContentTypeHTML)
	if err := projectPageTemplate.Execute(w, data); err != nil {
		h.logger.Error("failed to execute template", "error", err)
	}
}

var _ http.Handler = (*Handler)(nil)
