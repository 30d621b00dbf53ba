package remote

// Status is the uniform error-kind enumeration every cloud exchange
// reports through, whatever HTTP/transport/parsing step actually failed.
type Status int

const (
	StatusOK Status = iota
	StatusCannotConnect
	StatusCannotConnectTLS
	StatusLocalResource
	StatusCannotSend
	StatusCannotReceive
	StatusNoResponse
	StatusCannotParseResponse
	StatusCannotParseUpdateURL
	StatusCannotParseFileURL
	StatusCannotWriteVersionFile
	StatusCannotRetrieveFile
	StatusCannotCreateLocalFile
	StatusCannotWriteLocalFile
	StatusCannotComputeMD5
	StatusDownloadIncomplete
	StatusMD5CheckError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusCannotConnect:
		return "cannot-connect"
	case StatusCannotConnectTLS:
		return "cannot-connect-tls"
	case StatusLocalResource:
		return "local-resource"
	case StatusCannotSend:
		return "cannot-send"
	case StatusCannotReceive:
		return "cannot-receive"
	case StatusNoResponse:
		return "no-response"
	case StatusCannotParseResponse:
		return "cannot-parse-response"
	case StatusCannotParseUpdateURL:
		return "cannot-parse-update-url"
	case StatusCannotParseFileURL:
		return "cannot-parse-file-url"
	case StatusCannotWriteVersionFile:
		return "cannot-write-version-file"
	case StatusCannotRetrieveFile:
		return "cannot-retrieve-file"
	case StatusCannotCreateLocalFile:
		return "cannot-create-local-file"
	case StatusCannotWriteLocalFile:
		return "cannot-write-local-file"
	case StatusCannotComputeMD5:
		return "cannot-compute-md5"
	case StatusDownloadIncomplete:
		return "download-incomplete"
	case StatusMD5CheckError:
		return "md5-check-error"
	default:
		return "unknown"
	}
}
