package handlers

import (
	"net/http"
	"os"
	"strings"
	"sync"
)

// Version is set at build time with -ldflags "-X movieagent/handlers.Version=..."
// and otherwise read from version.txt.
var (
	Version     string
	versionOnce sync.Once
)

type VersionHandler struct {
	// Providers lists the upstream services with configured credentials.
	Providers []string
}

type VersionResponse struct {
	Version   string   `json:"version"`
	Providers []string `json:"providers"`
}

func NewVersionHandler(providers []string) *VersionHandler {
	return &VersionHandler{Providers: providers}
}

// BackendVersion returns the build version (cached after first read).
func BackendVersion() string {
	versionOnce.Do(func() {
		if strings.TrimSpace(Version) != "" {
			return
		}
		for _, path := range []string{"version.txt", "/app/version.txt"} {
			data, err := os.ReadFile(path)
			if err == nil {
				Version = strings.TrimSpace(string(data))
				return
			}
		}
		Version = "dev"
	})
	return Version
}

func (h *VersionHandler) GetVersion(w http.ResponseWriter, r *http.Request) {
	providers := h.Providers
	if providers == nil {
		providers = []string{}
	}
	writeJSON(w, http.StatusOK, VersionResponse{
		Version:   BackendVersion(),
		Providers: providers,
	})
}
