package domain

import "time"

// JobPhase tracks each stage of a single download or transcode job.
type JobPhase string

const (
	JobPhaseRequested   JobPhase = "requested"
	JobPhaseDownloading JobPhase = "downloading"
	JobPhaseTranscoding JobPhase = "transcoding"
	JobPhaseDone        JobPhase = "done"
	JobPhaseFailed      JobPhase = "failed"
)

// IsTerminal reports whether no further transitions are accepted.
func (p JobPhase) IsTerminal() bool {
	return p == JobPhaseDone || p == JobPhaseFailed
}

// Settings contains the runtime configuration handed to components.
type Settings struct {
	BotToken         string        `json:"-"`
	JWTSecret        string        `json:"-"`
	DataDir          string        `json:"dataDir"`
	TempDir          string        `json:"tempDir"`
	UsersFile        string        `json:"usersFile"`
	ChmodMode        string        `json:"chmodMode"`
	CleanupDelay     time.Duration `json:"cleanupDelay"`
	ProgressInterval time.Duration `json:"progressInterval"`
	TokenTTL         time.Duration `json:"tokenTTL"`
	ListLimit        int           `json:"listLimit"`
	HTTPAddr         string        `json:"httpAddr"`
	LogLevel         string        `json:"logLevel"`
	LogFormat        string        `json:"logFormat"`
	Tools            Tools         `json:"tools"`
}

// Tools names the external executables the bot shells out to.
type Tools struct {
	YtDlp   string `json:"ytDlp"`
	FFmpeg  string `json:"ffmpeg"`
	FFprobe string `json:"ffprobe"`
	Convert string `json:"convert"`
}

// Job stores the identity and lifecycle of one user request.
type Job struct {
	ID               string    `json:"id"`
	ChatID           int64     `json:"chatId"`
	RequestMessageID int       `json:"requestMessageId"`
	Source           string    `json:"source"`
	WorkDir          string    `json:"workDir"`
	Phase            JobPhase  `json:"phase"`
	Percent          int       `json:"percent"`
	StatusMessageID  int       `json:"statusMessageId"`
	LastStatusAt     time.Time `json:"lastStatusAt"`
}

// ProgressSample is one normalized progress reading.
type ProgressSample struct {
	Percent int `json:"percent"`
}

// UserRecord is the persisted registration entry for one chat user.
type UserRecord struct {
	UserID       int64  `json:"userId"`
	ChatID       int64  `json:"chatId"`
	ChatType     string `json:"chatType,omitempty"`
	ChatTitle    string `json:"chatTitle,omitempty"`
	ChatUsername string `json:"chatUsername,omitempty"`
	FirstName    string `json:"firstName,omitempty"`
	LastName     string `json:"lastName,omitempty"`
	Username     string `json:"username,omitempty"`
	Auth         bool   `json:"auth"`
}

// DisplayName returns first and last name joined for greetings and logs.
func (u UserRecord) DisplayName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return u.LastName
	}
}

// VideoFile is one downloaded library artifact and its metadata sidecar.
type VideoFile struct {
	Name     string         `json:"name"`
	ID       string         `json:"id"`
	Path     string         `json:"path"`
	InfoPath string         `json:"infoPath,omitempty"`
	Info     map[string]any `json:"info,omitempty"`
	ModTime  time.Time      `json:"modTime"`
}
