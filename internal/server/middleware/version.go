package middleware

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/garrettladley/noticeboard/internal/version"
	"github.com/garrettladley/noticeboard/internal/xerrors"
	"github.com/garrettladley/noticeboard/internal/xslog"
)

// VersionError contains information about version incompatibility.
type VersionError struct {
	ClientVersion string
	ServerVersion string
	MinVersion    string
}

func (e VersionError) Error() string {
	return fmt.Sprintf("client version %s incompatible with server version %s (requires v%s.x)",
		e.ClientVersion, e.ServerVersion, e.MinVersion)
}

// CheckVersionCompatibility validates that client and server share a major
// version. Development versions (devel, dirty, go install timestamps) and
// versions without a numeric major are always allowed.
func CheckVersionCompatibility(clientVersion, serverVersion string) *VersionError {
	if version.IsDevelopment(clientVersion) || version.IsDevelopment(serverVersion) {
		return nil
	}

	clientMajor, ok := version.Major(clientVersion)
	if !ok {
		return nil
	}
	serverMajor, ok := version.Major(serverVersion)
	if !ok || clientMajor == serverMajor {
		return nil
	}

	return &VersionError{
		ClientVersion: clientVersion,
		ServerVersion: serverVersion,
		MinVersion:    strconv.Itoa(serverMajor),
	}
}

// ClientVersion rejects requests from noticeboard clients with an
// incompatible major version. Requests without the version header pass.
func ClientVersion(serverVersion string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientVersion := r.Header.Get(version.Header)
			if clientVersion == "" {
				next.ServeHTTP(w, r)
				return
			}

			if verr := CheckVersionCompatibility(clientVersion, serverVersion); verr != nil {
				ctx := r.Context()
				xslog.FromContext(ctx).WarnContext(ctx, "rejected incompatible client",
					xslog.Error(verr),
				)
				xerrors.WriteError(ctx, w, xerrors.FromStatus(http.StatusUpgradeRequired,
					xerrors.WithMessage(verr.Error()),
				))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
