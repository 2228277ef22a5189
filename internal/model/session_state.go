package model

// Screen はルートで表示する画面を表す。
type Screen string

const (
	// ScreenLanding は未認証ユーザー向けのランディング画面。
	ScreenLanding Screen = "landing"
	// ScreenDashboard は認証済みユーザー向けのダッシュボード画面。
	ScreenDashboard Screen = "dashboard"
)

// SessionState はリクエストごとに導出される一時的なセッション状態。
// 永続化はせず、ルートコントローラーからビューへ明示的に受け渡す。
type SessionState struct {
	User      *User  `json:"user"`
	IsLoading bool   `json:"isLoading"`
	Screen    Screen `json:"screen"`
	// Token はBaaSのベアラートークン。レスポンスには含めない。
	Token string `json:"-"`
}

// NewLoadingState は読み込み中の初期状態を返す。
func NewLoadingState() *SessionState {
	return &SessionState{IsLoading: true, Screen: ScreenLanding}
}

// LandingState はユーザー未設定のランディング状態を返す。
func LandingState() *SessionState {
	return &SessionState{Screen: ScreenLanding}
}

// Authenticated はユーザーが設定されているかを返す。
func (s *SessionState) Authenticated() bool {
	return s != nil && s.User != nil
}
