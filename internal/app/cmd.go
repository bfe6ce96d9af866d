package app

// Command はhealscopeバイナリのサブコマンドを表す。
type Command string

const (
	// CommandServe はAPIサーバーを起動する（既定）。
	CommandServe Command = "serve"
	// CommandWorker は記事取り込みとセッションクリーンアップのワーカーを起動する。
	CommandWorker Command = "worker"
	// CommandMigrate は未適用のマイグレーションを適用して終了する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はローカルのAPIサーバーの/healthを確認して終了する。
	// シェルのないdistrolessイメージのDocker HEALTHCHECK用。
	CommandHealthcheck Command = "healthcheck"
)

var knownCommands = map[string]Command{
	string(CommandServe):       CommandServe,
	string(CommandWorker):      CommandWorker,
	string(CommandMigrate):     CommandMigrate,
	string(CommandHealthcheck): CommandHealthcheck,
}

// ParseCommand は先頭の引数からサブコマンドを決める。
// 引数なし、または未知のサブコマンドはserveとして扱う。2番目以降の引数は無視する。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}
	if cmd, ok := knownCommands[args[0]]; ok {
		return cmd
	}
	return CommandServe
}
