// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config_cmd.go - Configuration file commands.

package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jeranaias/agentchat/internal/config"
)

const configUsage = "agentchat config show|path|init|get KEY|set KEY VALUE"

// HandleConfig shows and edits the configuration file.
//
//	agentchat config show
//	agentchat config set agent.base_url https://agent.example.com/api/v1
//	agentchat config get storage.backend
func HandleConfig(args Args, w io.Writer) error {
	parser := NewArgParser(args.Raw, "force")

	switch args.Subcommand {
	case "show":
		cfg, err := LoadConfig(args, io.Discard)
		if err != nil {
			return err
		}
		if args.JSON {
			redacted := cfg.Clone()
			if redacted.Agent.APIKey != "" {
				redacted.Agent.APIKey = "[REDACTED]"
			}
			return NewJSONResponse("config show", redacted).Fprint(w)
		}
		fmt.Fprintln(w, cfg.String())
		return nil

	case "path":
		path := args.ConfigPath
		if path == "" {
			var err error
			if path, err = config.ConfigPathTOML(); err != nil {
				return err
			}
		}
		if args.JSON {
			return NewJSONResponse("config path", map[string]string{"path": path}).Fprint(w)
		}
		fmt.Fprintln(w, path)
		return nil

	case "init":
		path, err := configFilePath(args)
		if err != nil {
			return err
		}
		if _, err := os.Stat(path); err == nil && !parser.BoolFlag("force") {
			return NewValidationErrorWithExample("config", path, "file already exists", "agentchat config init --force")
		}
		if err := config.SaveTOML(config.Default(), path); err != nil {
			return NewCommandError("config", "init", "could not write config", err)
		}
		return configDone(args, w, "config init", map[string]string{"path": path}, "Wrote "+path)

	case "get":
		key, err := parser.Require(1, "KEY", "agentchat config get agent.base_url")
		if err != nil {
			return err
		}
		cfg, err := LoadConfig(args, io.Discard)
		if err != nil {
			return err
		}
		value, err := cfg.Get(key)
		if err != nil {
			return NewValidationErrorWithExample("KEY", key, err.Error(), "one of: "+strings.Join(config.GetAllKeys(), ", "))
		}
		if key == "agent.api_key" && value != "" {
			value = "[REDACTED]"
		}
		if args.JSON {
			return NewJSONResponse("config get", map[string]any{"key": key, "value": value}).Fprint(w)
		}
		fmt.Fprintln(w, value)
		return nil

	case "set":
		key, err := parser.Require(1, "KEY", "agentchat config set KEY VALUE")
		if err != nil {
			return err
		}
		if parser.PositionalCount() < 3 {
			return ErrMissingArgument("VALUE", "agentchat config set KEY VALUE")
		}
		value := JoinPositionalArgs(parser, 2)
		return configSet(args, w, key, value)

	default:
		return NewValidationErrorWithExample("subcommand", args.Subcommand, "unknown config subcommand", configUsage)
	}
}

// configSet edits one key of the TOML file. Environment overrides are not
// written back.
func configSet(args Args, w io.Writer, key, value string) error {
	path, err := configFilePath(args)
	if err != nil {
		return err
	}

	cfg := config.Default()
	if _, err := os.Stat(path); err == nil {
		if err := config.LoadTOML(cfg, path); err != nil {
			return err
		}
	}
	if err := cfg.Migrate(); err != nil {
		return err
	}
	cfg.SetDefaults()

	if err := cfg.Set(key, value); err != nil {
		return NewValidationErrorWithExample("KEY", key, err.Error(), "one of: "+strings.Join(config.GetAllKeys(), ", "))
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.SaveTOML(cfg, path); err != nil {
		return NewCommandError("config", "set", "could not write config", err)
	}

	shown := value
	if key == "agent.api_key" {
		shown = "[REDACTED]"
	}
	return configDone(args, w, "config set", map[string]string{"key": key, "value": shown},
		fmt.Sprintf("%s = %s", key, shown))
}

// configFilePath returns --config when it names a TOML file, otherwise the
// default TOML path.
func configFilePath(args Args) (string, error) {
	if args.ConfigPath != "" {
		if strings.HasSuffix(args.ConfigPath, ".json") {
			return "", NewValidationErrorWithExample("config", args.ConfigPath, "only TOML files can be written", "agentchat --config agentchat.toml config set KEY VALUE")
		}
		return args.ConfigPath, nil
	}
	return config.ConfigPathTOML()
}

func configDone(args Args, w io.Writer, command string, data any, text string) error {
	if args.JSON {
		return NewJSONResponse(command, data).Fprint(w)
	}
	fmt.Fprintln(w, RenderConditional(SuccessStyle, text))
	return nil
}
