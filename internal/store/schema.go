package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

var schema = []string{
	"CREATE TABLE IF NOT EXISTS `provider` (" +
		"`id` BIGINT NOT NULL AUTO_INCREMENT," +
		"`name` VARCHAR(255) NOT NULL," +
		"`type` VARCHAR(32) NOT NULL," +
		"`active` TINYINT(1) NOT NULL DEFAULT 1," +
		"`weight` INT NOT NULL DEFAULT 0," +
		"`is_default` TINYINT(1) NOT NULL DEFAULT 0," +
		"`domain` VARCHAR(255) NOT NULL DEFAULT ''," +
		"PRIMARY KEY (`id`)" +
		") ENGINE=InnoDB DEFAULT CHARSET=utf8mb4",

	"CREATE TABLE IF NOT EXISTS `smtp_settings` (" +
		"`id` BIGINT NOT NULL AUTO_INCREMENT," +
		"`provider_id` BIGINT NOT NULL," +
		"`host` VARCHAR(255) NOT NULL," +
		"`port` INT NOT NULL," +
		"`user` VARCHAR(255) NOT NULL," +
		"`pass` VARCHAR(255) NOT NULL," +
		"`secure` TINYINT(1) NOT NULL DEFAULT 1," +
		"PRIMARY KEY (`id`)," +
		"UNIQUE KEY `uq_smtp_provider` (`provider_id`)," +
		"CONSTRAINT `fk_smtp_provider` FOREIGN KEY (`provider_id`) REFERENCES `provider` (`id`) ON DELETE CASCADE" +
		") ENGINE=InnoDB DEFAULT CHARSET=utf8mb4",

	"CREATE TABLE IF NOT EXISTS `mailgun_settings` (" +
		"`id` BIGINT NOT NULL AUTO_INCREMENT," +
		"`provider_id` BIGINT NOT NULL," +
		"`api_key` VARCHAR(255) NOT NULL," +
		"`host` VARCHAR(255) NOT NULL," +
		"`domain` VARCHAR(255) NOT NULL DEFAULT ''," +
		"PRIMARY KEY (`id`)," +
		"UNIQUE KEY `uq_mailgun_provider` (`provider_id`)," +
		"CONSTRAINT `fk_mailgun_provider` FOREIGN KEY (`provider_id`) REFERENCES `provider` (`id`) ON DELETE CASCADE" +
		") ENGINE=InnoDB DEFAULT CHARSET=utf8mb4",

	"CREATE TABLE IF NOT EXISTS `sendinblue_settings` (" +
		"`id` BIGINT NOT NULL AUTO_INCREMENT," +
		"`provider_id` BIGINT NOT NULL," +
		"`api_key` VARCHAR(255) NOT NULL," +
		"`api_url` VARCHAR(255) NOT NULL," +
		"PRIMARY KEY (`id`)," +
		"UNIQUE KEY `uq_sendinblue_provider` (`provider_id`)," +
		"CONSTRAINT `fk_sendinblue_provider` FOREIGN KEY (`provider_id`) REFERENCES `provider` (`id`) ON DELETE CASCADE" +
		") ENGINE=InnoDB DEFAULT CHARSET=utf8mb4",

	"CREATE TABLE IF NOT EXISTS `message` (" +
		"`id` BIGINT NOT NULL AUTO_INCREMENT," +
		"`from` VARCHAR(512) NOT NULL," +
		"`to` VARCHAR(512) NOT NULL," +
		"`reply_to` VARCHAR(512) NOT NULL DEFAULT ''," +
		"`subject` VARCHAR(998) NOT NULL," +
		"`text` MEDIUMTEXT NOT NULL," +
		"`html` MEDIUMTEXT NOT NULL," +
		"`template` VARCHAR(255) NOT NULL DEFAULT ''," +
		"`language` VARCHAR(16) NOT NULL DEFAULT ''," +
		"`status` VARCHAR(16) NOT NULL," +
		"`attempt` INT NOT NULL DEFAULT 0," +
		"`max_retries` INT NOT NULL," +
		"`error` TEXT NULL," +
		"`created` DATETIME NOT NULL," +
		"`sent` DATETIME NULL," +
		"`retry_after` DATETIME NULL," +
		"`transport_id` BIGINT NULL," +
		"PRIMARY KEY (`id`)," +
		"KEY `idx_message_due` (`status`, `retry_after`)," +
		"KEY `idx_message_transport` (`transport_id`, `created`)" +
		") ENGINE=InnoDB DEFAULT CHARSET=utf8mb4",

	"CREATE TABLE IF NOT EXISTS `template` (" +
		"`id` BIGINT NOT NULL AUTO_INCREMENT," +
		"`name` VARCHAR(255) NOT NULL," +
		"`language` VARCHAR(16) NOT NULL," +
		"`subject` VARCHAR(998) NOT NULL," +
		"`text` MEDIUMTEXT NOT NULL," +
		"`html` MEDIUMTEXT NOT NULL," +
		"PRIMARY KEY (`id`)," +
		"UNIQUE KEY `uq_template_name_language` (`name`, `language`)" +
		") ENGINE=InnoDB DEFAULT CHARSET=utf8mb4",
}

// EnsureSchema creates any missing table.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}
