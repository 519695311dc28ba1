package offline

import (
	"fmt"

	"kerigma/internal/models"
)

var (
	msgConnectionRestored = models.Notification{
		Title:       "Conexão restaurada",
		Description: "Sincronizando dados...",
		Severity:    models.SeverityInfo,
	}
	msgConnectionLost = models.Notification{
		Title:       "Sem conexão",
		Description: "Dados serão salvos para sincronização posterior.",
		Severity:    models.SeverityDestructive,
	}
	msgSavedOffline = models.Notification{
		Title:       "Ação salva offline",
		Description: "Será sincronizada quando a conexão for restaurada.",
		Severity:    models.SeverityInfo,
	}
	msgSyncFailed = models.Notification{
		Title:       "Erro na sincronização",
		Description: "Tentaremos novamente em breve.",
		Severity:    models.SeverityDestructive,
	}
)

func msgSyncCompleted(synced int) models.Notification {
	return models.Notification{
		Title:       "Sincronização concluída",
		Description: fmt.Sprintf("%d ações sincronizadas com sucesso.", synced),
		Severity:    models.SeverityInfo,
	}
}
