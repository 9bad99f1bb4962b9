package tui

// Key binding constants used in handleKey.
const (
	KeyQuit          = "q"
	KeyQuitUpper     = "Q"
	KeyCtrlC         = "ctrl+c"
	KeyToggle        = "c"
	KeyCycleLanguage = "l"
	KeyRetryCatalog  = "r"
)
