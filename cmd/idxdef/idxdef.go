package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"github.com/sqldef/idxdef"
	"github.com/sqldef/idxdef/database"
	"github.com/sqldef/idxdef/database/file"
	"github.com/sqldef/idxdef/database/mysql"
	"github.com/sqldef/idxdef/database/postgres"
	"github.com/sqldef/idxdef/schema"
	"github.com/sqldef/idxdef/util"
	"golang.org/x/term"
)

// version and revision are set via -ldflags
var version = "dev"
var revision = "HEAD"

type commandOptions struct {
	Type                  string   `short:"t" long:"type" description:"Target database: mysql or postgresql" value-name:"dialect" default:"mysql"`
	User                  string   `short:"U" long:"user" description:"Database user name" value-name:"user_name"`
	Password              string   `short:"W" long:"password" description:"Database user password, overridden by $MYSQL_PWD or $PGPASSWORD" value-name:"password"`
	Host                  string   `short:"h" long:"host" description:"Host to connect to the database server" value-name:"host_name" default:"127.0.0.1"`
	Port                  uint     `short:"p" long:"port" description:"Port used for the connection (default: 3306 for mysql, 5432 for postgresql)" value-name:"port_num"`
	Socket                string   `short:"S" long:"socket" description:"The socket file (mysql) or directory (postgresql) to use for connection" value-name:"socket"`
	SslMode               string   `long:"ssl-mode" description:"SSL connection mode. mysql: PREFERRED, REQUIRED, DISABLED, CUSTOM. postgresql: passed as sslmode" value-name:"ssl_mode"`
	SslCa                 string   `long:"ssl-ca" description:"File that contains list of trusted SSL Certificate Authorities" value-name:"ssl_ca"`
	Prompt                bool     `long:"password-prompt" description:"Force database user password prompt"`
	EnableCleartextPlugin bool     `long:"enable-cleartext-plugin" description:"Enable/disable the clear text authentication plugin (mysql)"`
	File                  []string `long:"file" description:"Read desired indexes from the YAML manifest, rather than stdin (can be specified multiple times)" value-name:"manifest" default:"-"`
	Output                string   `short:"o" long:"output" description:"Write the generated script to the file instead of stdout" value-name:"sql_file"`
	DryRun                bool     `long:"dry-run" description:"Don't run the script but just show what would be executed"`
	Export                bool     `long:"export" description:"Just dump the current indexes to stdout as a manifest"`
	Check                 bool     `long:"check" description:"Parse the generated script before printing or running it"`
	Debug                 bool     `long:"debug" description:"Print the parsed index specs to stderr"`
	EnvFile               string   `long:"env-file" description:"Load environment variables from the file" value-name:"env_file" default:".env"`
	Help                  bool     `long:"help" description:"Show this help"`
	Version               bool     `long:"version" description:"Show this version"`

	// Custom handlers for config flags to preserve order
	Config       func(string) `long:"config" description:"YAML file to specify: target_tables, max_columns, routine_name, postgres_existence_check, dump_concurrency (can be specified multiple times)"`
	ConfigInline func(string) `long:"config-inline" description:"YAML object to specify: target_tables, max_columns, routine_name, postgres_existence_check, dump_concurrency (can be specified multiple times)"`
}

// Return parsed options. databaseName is empty when the script is only printed.
func parseOptions(args []string) (schema.GeneratorMode, string, database.Config, *idxdef.Options) {
	// Track parsed configs in order
	var configs []database.GeneratorConfig

	var opts commandOptions
	opts.Config = func(path string) {
		configs = append(configs, database.ParseGeneratorConfig(path))
	}
	opts.ConfigInline = func(yaml string) {
		configs = append(configs, database.ParseGeneratorConfigString(yaml))
	}

	parser := flags.NewParser(&opts, flags.None)
	parser.Usage = "[OPTIONS] [database|current.yml] < desired.yml"
	args, err := parser.ParseArgs(args)
	if err != nil {
		log.Fatal(err)
	}

	if opts.Help {
		parser.WriteHelp(os.Stdout)
		os.Exit(0)
	}

	if opts.Version {
		fmt.Printf("%s (%s)\n", version, revision)
		os.Exit(0)
	}

	mode, err := schema.ParseGeneratorMode(opts.Type)
	if err != nil {
		fmt.Printf("%s\n\n", err)
		parser.WriteHelp(os.Stdout)
		os.Exit(1)
	}

	if err := loadEnvFile(opts.EnvFile); err != nil {
		log.Fatal(err)
	}

	// merge --config and --config-inline in order
	config := database.MergeGeneratorConfigs(configs)

	options := idxdef.Options{
		DesiredFiles: opts.File,
		OutputFile:   opts.Output,
		DryRun:       opts.DryRun,
		Export:       opts.Export,
		Check:        opts.Check,
		Debug:        opts.Debug,
		Config:       config,
	}

	if len(args) > 1 {
		fmt.Printf("Multiple databases are given: %v\n\n", args)
		parser.WriteHelp(os.Stdout)
		os.Exit(1)
	}
	var databaseName string
	if len(args) == 1 {
		if strings.HasSuffix(args[0], ".yml") || strings.HasSuffix(args[0], ".yaml") {
			options.CurrentFile = args[0]
		} else {
			databaseName = args[0]
		}
	}
	if options.Export && databaseName == "" {
		fmt.Print("No database is specified for --export!\n\n")
		parser.WriteHelp(os.Stdout)
		os.Exit(1)
	}

	dbConfig := database.Config{
		DbName:                     databaseName,
		User:                       opts.User,
		Host:                       opts.Host,
		Port:                       int(opts.Port),
		Socket:                     opts.Socket,
		SslCa:                      opts.SslCa,
		MySQLEnableCleartextPlugin: opts.EnableCleartextPlugin,
		DumpConcurrency:            config.DumpConcurrency,
	}

	switch mode {
	case schema.GeneratorModeMysql:
		dbConfig.SslMode, err = mysqlSslMode(opts.SslMode)
		if err != nil {
			fmt.Printf("%s\n\n", err)
			parser.WriteHelp(os.Stdout)
			os.Exit(1)
		}
		if dbConfig.User == "" {
			dbConfig.User = "root"
		}
		if dbConfig.Port == 0 {
			dbConfig.Port = 3306
		}
		dbConfig.Password = passwordFromEnv("MYSQL_PWD", opts.Password)
	case schema.GeneratorModePostgres:
		dbConfig.SslMode = opts.SslMode
		if dbConfig.User == "" {
			dbConfig.User = "postgres"
		}
		if dbConfig.Port == 0 {
			dbConfig.Port = 5432
		}
		dbConfig.Password = passwordFromEnv("PGPASSWORD", opts.Password)
	}

	if opts.Prompt {
		fmt.Printf("Enter Password: ")
		pass, err := term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println()
		dbConfig.Password = string(pass)
	}

	return mode, databaseName, dbConfig, &options
}

func mysqlSslMode(sslMode string) (string, error) {
	switch strings.ToLower(sslMode) {
	case "", "preferred":
		return "preferred", nil
	case "disabled":
		return "false", nil
	case "required":
		return "true", nil
	case "custom":
		return "custom", nil
	default:
		return "", fmt.Errorf("wrong value for ssl-mode is given: %v", sslMode)
	}
}

func passwordFromEnv(key string, flagValue string) string {
	if password, ok := os.LookupEnv(key); ok {
		return password
	}
	return flagValue
}

// A missing env file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func main() {
	util.InitSlog()
	mode, databaseName, config, options := parseOptions(os.Args[1:])

	if term.IsTerminal(int(os.Stdout.Fd())) {
		options.Logger = database.ColorLogger{}
	} else {
		color.NoColor = true
		options.Logger = database.StdoutLogger{}
	}

	var db database.Database
	var sqlParser database.Parser
	switch mode {
	case schema.GeneratorModeMysql:
		sqlParser = mysql.NewParser()
	case schema.GeneratorModePostgres:
		sqlParser = postgres.NewParser()
	}

	if len(options.CurrentFile) > 0 {
		db = file.NewDatabase(mode, options.CurrentFile)
	} else if databaseName != "" {
		var err error
		switch mode {
		case schema.GeneratorModeMysql:
			db, err = mysql.NewDatabase(config)
		case schema.GeneratorModePostgres:
			db, err = postgres.NewDatabase(config)
		}
		if err != nil {
			log.Fatal(err)
		}
		defer db.Close()
	}

	if err := idxdef.Run(context.Background(), mode, db, sqlParser, options); err != nil {
		log.Fatal(err)
	}
}
