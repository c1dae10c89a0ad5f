package app

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/hitoshi/prmconsole/internal/client"
	"github.com/hitoshi/prmconsole/internal/config"
	"github.com/hitoshi/prmconsole/internal/console"
	"github.com/hitoshi/prmconsole/internal/logger"
	"github.com/hitoshi/prmconsole/internal/model"
)

// consoleArgs はconsoleサブコマンドの引数。
type consoleArgs struct {
	Email    string
	Password string
	Name     string
	SignUp   bool
	SignOut  bool
	OAuth    string
	Path     string
}

// parseConsoleArgs は "console" 以降の引数を解析する。
//
//	console [-email E -password P [-signup -name N]] [-signout] [-oauth google] [path]
func parseConsoleArgs(args []string, output io.Writer) (consoleArgs, error) {
	var a consoleArgs
	fs := flag.NewFlagSet("console", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&a.Email, "email", "", "サインインするメールアドレス")
	fs.StringVar(&a.Password, "password", os.Getenv("PRM_PASSWORD"), "パスワード（既定: PRM_PASSWORD）")
	fs.StringVar(&a.Name, "name", "", "サインアップ時の表示名")
	fs.BoolVar(&a.SignUp, "signup", false, "サインインの代わりにアカウントを作成する")
	fs.BoolVar(&a.SignOut, "signout", false, "サインアウトする")
	fs.StringVar(&a.OAuth, "oauth", "", "外部IdPのログインURLを表示する（例: google）")
	if err := fs.Parse(args); err != nil {
		return consoleArgs{}, err
	}

	a.Path = "/"
	if fs.NArg() > 0 {
		a.Path = fs.Arg(0)
	}
	if a.Email != "" && a.Password == "" {
		return consoleArgs{}, errors.New("password is required when -email is set")
	}
	if a.SignUp && a.Email == "" {
		return consoleArgs{}, errors.New("-signup requires -email")
	}
	return a, nil
}

// viewOutput はRender結果のJSON表現。
type viewOutput struct {
	Kind          console.ViewKind   `json:"kind"`
	Path          string             `json:"path"`
	RedirectTo    string             `json:"redirect_to,omitempty"`
	From          string             `json:"from,omitempty"`
	AppName       string             `json:"app_name"`
	LogoURL       *string            `json:"logo_url,omitempty"`
	Identity      *model.Identity    `json:"identity,omitempty"`
	Profile       *model.Profile     `json:"profile,omitempty"`
	Collection    model.Collection   `json:"collection,omitempty"`
	Settings      *model.AppSettings `json:"settings,omitempty"`
	SettingsError string             `json:"settings_error,omitempty"`
	Records       []*model.Record    `json:"records,omitempty"`
	Users         []*model.Profile   `json:"users,omitempty"`
	OAuthURL      string             `json:"oauth_url,omitempty"`
}

func newViewOutput(v console.View) viewOutput {
	out := viewOutput{
		Kind:       v.Kind,
		Path:       v.Path,
		RedirectTo: v.RedirectTo,
		From:       v.From,
		AppName:    v.AppName,
		LogoURL:    v.LogoURL,
		Identity:   v.Identity,
		Profile:    v.Profile,
		Collection: v.Collection,
		Settings:   v.Settings,
	}
	if v.SettingsErr != nil {
		out.SettingsError = v.SettingsErr.Error()
	}
	return out
}

// runConsole はAPIクライアントとしてコンソールを起動し、指定パスの画面判定結果をJSONでwに書き出す。
// ログは標準エラー出力に出す。
func runConsole(w io.Writer, args []string) error {
	if err := config.LoadDotEnv(os.Getenv("DOTENV_PATH")); err != nil {
		return err
	}
	cfg, err := config.LoadConsole()
	if err != nil {
		return fmt.Errorf("failed to load console config: %w", err)
	}
	a, err := parseConsoleArgs(args, os.Stderr)
	if err != nil {
		return err
	}

	log := logger.Setup(os.Stderr, cfg.LogLevel)
	api := client.New(cfg.APIURL, &http.Client{Timeout: cfg.RequestTimeout},
		client.NewFileTokenStore(cfg.TokenFile), log)

	c := console.New(api, api, console.Options{
		AuthReadyTimeout:     cfg.AuthReadyTimeout,
		SettingsFetchTimeout: cfg.SettingsFetchTimeout,
	})
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.AuthReadyTimeout+cfg.SettingsFetchTimeout+cfg.RequestTimeout)
	defer cancel()

	c.Start(ctx)
	if err := c.WaitReady(ctx); err != nil {
		return fmt.Errorf("console did not become ready: %w", err)
	}

	var oauthURL string
	switch {
	case a.SignOut:
		if err := c.SignOut(ctx); err != nil {
			return fmt.Errorf("sign out failed: %w", err)
		}
	case a.SignUp:
		if _, err := c.SignUp(ctx, a.Email, a.Password, a.Name); err != nil {
			return fmt.Errorf("sign up failed: %w", err)
		}
	case a.Email != "":
		if err := c.SignIn(ctx, a.Email, a.Password); err != nil {
			return fmt.Errorf("sign in failed: %w", err)
		}
	case a.OAuth != "":
		oauthURL, err = c.SignInWithOAuth(a.OAuth, a.Path)
		if err != nil {
			return fmt.Errorf("oauth sign in failed: %w", err)
		}
	}

	waitSettled(ctx, c)

	out := newViewOutput(c.Render(a.Path))
	out.OAuthURL = oauthURL
	switch out.Kind {
	case console.ViewRecords, console.ViewNotifications:
		records, err := api.ListRecords(ctx, out.Collection, false)
		if err != nil {
			log.Warn("failed to list records",
				slog.String("collection", string(out.Collection)),
				slog.String("error", err.Error()))
		}
		out.Records = records
	case console.ViewAdminUsers:
		users, err := api.ListUsers(ctx)
		if err != nil {
			log.Warn("failed to list users", slog.String("error", err.Error()))
		}
		out.Users = users
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// waitSettled はプロフィールと全体設定の取得が落ち着くまで待つ。ctxの期限で打ち切る。
func waitSettled(ctx context.Context, c *console.Console) {
	changed := make(chan struct{}, 1)
	unsubscribe := c.Subscribe(func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	// 通知を取りこぼしても定期的に再確認する
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for !settled(c) {
		select {
		case <-ctx.Done():
			return
		case <-changed:
		case <-ticker.C:
		}
	}
}

func settled(c *console.Console) bool {
	auth := c.UseAuth()
	return auth.Ready && !auth.ProfileLoading && c.UseSettings().Ready
}
