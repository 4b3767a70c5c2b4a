package gateway

import "fmt"

// Command is the opcode in byte 4 of every frame. Values are shared with every Gateway and Worker
// deployment and must never change.
type Command uint8

const (
	Command_OnConnect                Command = 1
	Command_OnMessage                Command = 3
	Command_OnClose                  Command = 4
	Command_SendToOne                Command = 5
	Command_SendToAll                Command = 6
	Command_Kick                     Command = 7
	Command_Destroy                  Command = 8
	Command_UpdateSession            Command = 9
	Command_GetAllClientSessions     Command = 10
	Command_IsOnline                 Command = 11
	Command_BindUid                  Command = 12
	Command_UnbindUid                Command = 13
	Command_SendToUid                Command = 14
	Command_GetClientIdByUid         Command = 15
	Command_BatchGetClientIdByUid    Command = 16
	Command_JoinGroup                Command = 20
	Command_LeaveGroup               Command = 21
	Command_SendToGroup              Command = 22
	Command_GetClientSessionsByGroup Command = 23
	Command_GetClientCountByGroup    Command = 24
	Command_Select                   Command = 25
	Command_GetGroupIdList           Command = 26
	Command_Ungroup                  Command = 27
	Command_WorkerConnect            Command = 200
	Command_Ping                     Command = 201
	Command_GatewayClientConnect     Command = 202
	Command_GetSessionByClientId     Command = 203
	Command_SetSession               Command = 204
	Command_OnWebsocketConnect       Command = 205
)

var commandNames = map[Command]string{
	Command_OnConnect:                "on-connect",
	Command_OnMessage:                "on-message",
	Command_OnClose:                  "on-close",
	Command_SendToOne:                "send-to-one",
	Command_SendToAll:                "send-to-all",
	Command_Kick:                     "kick",
	Command_Destroy:                  "destroy",
	Command_UpdateSession:            "update-session",
	Command_GetAllClientSessions:     "get-all-client-sessions",
	Command_IsOnline:                 "is-online",
	Command_BindUid:                  "bind-uid",
	Command_UnbindUid:                "unbind-uid",
	Command_SendToUid:                "send-to-uid",
	Command_GetClientIdByUid:         "get-client-id-by-uid",
	Command_BatchGetClientIdByUid:    "batch-get-client-id-by-uid",
	Command_JoinGroup:                "join-group",
	Command_LeaveGroup:               "leave-group",
	Command_SendToGroup:              "send-to-group",
	Command_GetClientSessionsByGroup: "get-client-sessions-by-group",
	Command_GetClientCountByGroup:    "get-client-count-by-group",
	Command_Select:                   "select",
	Command_GetGroupIdList:           "get-group-id-list",
	Command_Ungroup:                  "ungroup",
	Command_WorkerConnect:            "worker-connect",
	Command_Ping:                     "ping",
	Command_GatewayClientConnect:     "gateway-client-connect",
	Command_GetSessionByClientId:     "get-session-by-client-id",
	Command_SetSession:               "set-session",
	Command_OnWebsocketConnect:       "on-websocket-connect",
}

func (c Command) String() string {
	if name, has := commandNames[c]; has {
		return name
	}
	return fmt.Sprintf("command(%d)", uint8(c))
}

func (c Command) IsKnown() bool {
	_, has := commandNames[c]
	return has
}
