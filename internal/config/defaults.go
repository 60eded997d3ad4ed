package config

// DefaultConfigYAML is the commented configuration template written by
// `pilot init`.
const DefaultConfigYAML = `# Pilot configuration
# All settings can be overridden with PILOT_* environment variables,
# e.g. PILOT_LLM_MODEL=gpt-4o or PILOT_SAFETY_LEVEL=warn.

log:
  # Log level: debug, info, warn, error
  level: info
  # Log format: auto, text, json
  format: auto
  # Optional log file (stderr when empty)
  # file: .pilot/pilot.log

server:
  host: 127.0.0.1
  port: 8787
  cors_origins:
    - http://localhost:5173

store:
  # SQLite database for goals and memory events
  path: .pilot/pilot.db
  backup_path: .pilot/pilot.db.bak

llm:
  # Provider: openai, anthropic, ollama, groq, mistral
  provider: openai
  model: gpt-4o-mini
  # api_key: ""  # falls back to the provider's usual environment variable
  max_tokens: 1024
  temperature: 0.7

agent:
  # Maximum perceive/plan/act iterations per session
  max_iterations: 5
  # Timeout applied to each executed action
  action_timeout: 30s
  # Retry budget for failed actions before the goal is marked degraded
  max_retries: 3
  # Shell used by the terminal executor
  shell: /bin/sh
  screenshots_dir: .pilot/screenshots

safety:
  # Safety gate level: off, warn, block
  level: block
  # Optional YAML file with additional blocked patterns
  # patterns_file: .pilot/safety_patterns.yaml

snapshots:
  dir: .pilot/snapshots
  compress: true
  # 0 means no limit on exported events
  event_limit: 0
`
