// Package config loads and validates larkgate's configuration.
//
// The effective configuration is layered, later sources winning:
//
//  1. Built-in defaults (GetDefaultConfig)
//  2. The yaml file given with --config (default ~/.config/larkgate/config.yaml)
//  3. A .env file in the working directory
//  4. The process environment
//  5. Command line flags, applied by the cmd package
//
// Recognised environment variables include FEISHU_APP_ID, FEISHU_APP_SECRET,
// ACTIONS_OAUTH_CLIENT_ID, ACTIONS_OAUTH_CLIENT_SECRET, ALLOWED_ORIGINS,
// LOG_LEVEL and the LARKGATE_* family.
//
// Example config.yaml:
//
//	server:
//	  host: 0.0.0.0
//	  port: 8787
//	  publicURL: https://gate.example.com
//	upstream:
//	  appID: cli_xxx
//	  appSecret: secret
//	storage:
//	  type: valkey
//	  valkey:
//	    address: localhost:6379
//	cors:
//	  allowedOrigins: ["https://chat.example.com"]
//
// Validate reports every problem at once as a ConfigurationErrorCollection.
// Watch reloads the file on change; only the CORS origins are applied to a
// running server.
package config
