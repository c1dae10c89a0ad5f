package app

import (
	"fmt"
	"strconv"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker はセッションクリーンアップのワーカーモードで起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
	// CommandConsole はAPIクライアントとしてコンソールを起動し、画面を判定する。
	CommandConsole Command = "console"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "worker":
		return CommandWorker
	case "serve":
		return CommandServe
	case "migrate":
		return CommandMigrate
	case "healthcheck":
		return CommandHealthcheck
	case "console":
		return CommandConsole
	default:
		return CommandServe
	}
}

// MigrateAction はmigrateサブコマンドの操作。
type MigrateAction string

const (
	MigrateUp      MigrateAction = "up"
	MigrateDown    MigrateAction = "down"
	MigrateVersion MigrateAction = "version"
)

// MigrateArgs はmigrateサブコマンドの引数。
type MigrateArgs struct {
	Action MigrateAction
	Steps  int // MigrateDownのときのみ使う
}

// ParseMigrateArgs は "migrate" 以降の引数を解析する。
//
//	migrate             -> up
//	migrate up          -> up
//	migrate down [N]    -> N件巻き戻し（既定1）
//	migrate version     -> 現在のバージョンを表示
func ParseMigrateArgs(args []string) (MigrateArgs, error) {
	if len(args) == 0 {
		return MigrateArgs{Action: MigrateUp}, nil
	}

	switch MigrateAction(args[0]) {
	case MigrateUp:
		return MigrateArgs{Action: MigrateUp}, nil
	case MigrateVersion:
		return MigrateArgs{Action: MigrateVersion}, nil
	case MigrateDown:
		steps := 1
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n <= 0 {
				return MigrateArgs{}, fmt.Errorf("invalid rollback steps: %q", args[1])
			}
			steps = n
		}
		return MigrateArgs{Action: MigrateDown, Steps: steps}, nil
	default:
		return MigrateArgs{}, fmt.Errorf("unknown migrate action: %q", args[0])
	}
}
