package version

// Version, GitCommit, and BuildDate are set at build time via ldflags:
//
//	go build -ldflags "-X github.com/newtron-network/routevnf/pkg/version.Version=v1.0.0 \
//	  -X github.com/newtron-network/routevnf/pkg/version.GitCommit=abc1234 \
//	  -X github.com/newtron-network/routevnf/pkg/version.BuildDate=2026-01-01T00:00:00Z"
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// ControllerAPI names the controller application whose REST and event
// interface this build speaks.
const ControllerAPI = "sdn-routing-rest"

// Info returns a formatted version string for display.
func Info() string {
	return Version + " (" + GitCommit + ") built " + BuildDate + ", controller API " + ControllerAPI
}

// UserAgent identifies the VNF in requests to the controller.
func UserAgent() string {
	return "routevnf/" + Version + " (" + ControllerAPI + ")"
}
