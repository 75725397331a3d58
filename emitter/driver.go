package emitter

// decryptHelpersSource defines the two helper functions the emitted
// driver calls when -encrypt is set: decrypt_string undoes the
// per-byte XOR 0xAA applied to string constants, decrypt_instruction
// undoes the per-field XOR keyed on 0xDEADBEEF^pc applied to every
// instruction. Mirrors LuaGenerator.cpp's embedded helper definitions.
const decryptHelpersSource = `
local function decrypt_string(t)
    local s = {}
    for i, b in ipairs(t) do
        s[i] = string.char(b ~ 0xAA)
    end
    return table.concat(s)
end

local function decrypt_instruction(t, pc)
    local key = 0xDEADBEEF ~ pc
    return { t[1] ~ key, t[2] ~ key, t[3] ~ key, t[4] ~ key }
end
`

// vmDriverPrelude is the fixed VM scaffolding emitted before the
// instruction-fetch loop: the closure-wrapping machinery that lets a
// compiled closure be handed to native functions expecting a plain
// callable (table.sort comparators, xpcall handlers, string.gsub
// replacers), and run_vm's setup of its register stack and
// open-upvalue table.
const vmDriverPrelude = `
local _G = _G
local unpack = table.unpack or unpack

local run_vm

local function wrap_if_needed(val)
    if type(val) == "table" and val.type == "closure" then
        if not val.wrapper then
            val.wrapper = function(...)
                local args = {...}
                local proto = val.proto
                local numParams = proto.numParams or 0
                local fArgs = {}
                local vArgs = {}
                local n = select('#', ...)

                for i = 1, n do
                    if i <= numParams then
                        fArgs[i] = args[i]
                    else
                        table.insert(vArgs, args[i])
                    end
                end
                vArgs.n = n - numParams
                if vArgs.n < 0 then vArgs.n = 0 end

                return run_vm(val, fArgs, vArgs)
            end
        end
        return val.wrapper
    end
    return val
end

local closure_mt = {
    __call = function(t, ...)
        return wrap_if_needed(t)(...)
    end
}

run_vm = function(closure, args, varargs)
    local proto = closure.proto
    local stack = {}

    local open_upvalues = {}

    if args then
        local numParams = proto.numParams or 0
        for i = 1, numParams do
            stack[i-1] = args[i]
        end
    end

    local vargs = varargs or {}

    local pc = 1
    local code = proto.code
    local constants = proto.constants
    local protos = proto.protos
    local upvalues = closure.upvalues or {}

    while pc <= #code do
`

// vmDriverBody is the per-opcode interpreter loop, translated
// line-for-line from LuaGenerator.cpp's run_vm body: every
// register-writing instruction re-synchronizes open_upvalues so a
// closure that captured a still-open local sees the write immediately
// (spec.md's open-upvalue semantics), and OP_RETURN truncates or pads
// results by its B operand exactly like a real call boundary would.
// OP_FORPREP additionally raises an error when the step is zero.
const vmDriverBody = `        pc = pc + 1

        local op = inst[1]
        local a = inst[2]
        local b = inst[3]
        local c = inst[4]

        if op == OP_MOVE then
            stack[a] = stack[b]
            if open_upvalues[a] then open_upvalues[a].val = stack[a] end
        elseif op == OP_LOADK then
            stack[a] = constants[b]
            if open_upvalues[a] then open_upvalues[a].val = stack[a] end
        elseif op == OP_ADD then
            stack[a] = stack[b] + stack[c]
            if open_upvalues[a] then open_upvalues[a].val = stack[a] end
        elseif op == OP_SUB then
            stack[a] = stack[b] - stack[c]
            if open_upvalues[a] then open_upvalues[a].val = stack[a] end
        elseif op == OP_MUL then
            stack[a] = stack[b] * stack[c]
            if open_upvalues[a] then open_upvalues[a].val = stack[a] end
        elseif op == OP_DIV then
            stack[a] = stack[b] / stack[c]
            if open_upvalues[a] then open_upvalues[a].val = stack[a] end
        elseif op == OP_IDIV then
            stack[a] = math.floor(stack[b] / stack[c])
            if open_upvalues[a] then open_upvalues[a].val = stack[a] end
        elseif op == OP_MOD then
            stack[a] = stack[b] % stack[c]
            if open_upvalues[a] then open_upvalues[a].val = stack[a] end
        elseif op == OP_CONCAT then
            stack[a] = stack[b] .. stack[c]
            if open_upvalues[a] then open_upvalues[a].val = stack[a] end
        elseif op == OP_LEN then
            stack[a] = #stack[b]
            if open_upvalues[a] then open_upvalues[a].val = stack[a] end
        elseif op == OP_NOT then
            stack[a] = not stack[b]
            if open_upvalues[a] then open_upvalues[a].val = stack[a] end
        elseif op == OP_EQ then
            stack[a] = (stack[b] == stack[c])
            if open_upvalues[a] then open_upvalues[a].val = stack[a] end
        elseif op == OP_LT then
            stack[a] = (stack[b] < stack[c])
            if open_upvalues[a] then open_upvalues[a].val = stack[a] end
        elseif op == OP_LE then
            stack[a] = (stack[b] <= stack[c])
            if open_upvalues[a] then open_upvalues[a].val = stack[a] end
        elseif op == OP_JMP then
            pc = pc + b
        elseif op == OP_JMP_FALSE then
            if not stack[a] then
                pc = pc + b
            end
        elseif op == OP_GETGLOBAL then
            stack[a] = _G[constants[b]]
            if open_upvalues[a] then open_upvalues[a].val = stack[a] end
        elseif op == OP_SETGLOBAL then
            _G[constants[b]] = stack[a]
        elseif op == OP_NEWTABLE then
            stack[a] = {}
            if open_upvalues[a] then open_upvalues[a].val = stack[a] end
        elseif op == OP_GETTABLE then
            if stack[b] == nil then
                error("OP_GETTABLE: stack[" .. b .. "] is nil. Key: " .. tostring(stack[c]))
            end
            stack[a] = stack[b][stack[c]]
            if open_upvalues[a] then open_upvalues[a].val = stack[a] end
        elseif op == OP_SETTABLE then
            if stack[a] == nil then
                error("OP_SETTABLE: stack[" .. a .. "] is nil. Key: " .. tostring(stack[b]))
            end
            stack[a][stack[b]] = stack[c]
        elseif op == OP_GETUPVAL then
            stack[a] = upvalues[b].val
            if open_upvalues[a] then open_upvalues[a].val = stack[a] end
        elseif op == OP_SETUPVAL then
            upvalues[b].val = stack[a]
        elseif op == OP_VARARG then
            local n = c - 1
            if n < 0 then n = vargs.n or #vargs end
            for i = 1, n do
                stack[a + i - 1] = vargs[i]
            end
            if open_upvalues[a] then open_upvalues[a].val = stack[a] end
        elseif op == OP_FORPREP then
            if stack[a+2] == 0 then
                error("'for' step is zero")
            end
            stack[a] = stack[a] - stack[a+2]
            pc = pc + b
        elseif op == OP_FORLOOP then
            local step = stack[a+2]
            stack[a] = stack[a] + step
            local idx = stack[a]
            local limit = stack[a+1]
            if (step > 0 and idx <= limit) or (step <= 0 and idx >= limit) then
                pc = pc + b
                stack[a+3] = idx
            end
        elseif op == OP_TFORCALL then
            local func = stack[a]
            local state = stack[a+1]
            local ctl = stack[a+2]
            local n = c
            local results
            if type(func) == "function" then
                results = { func(state, ctl) }
            elseif type(func) == "table" and func.type == "closure" then
                results = { run_vm(func, {state, ctl}) }
            else
                error("attempt to call a non-function iterator")
            end

            for i = 1, n do
                stack[a+2+i] = results[i]
            end
        elseif op == OP_TFORLOOP then
            local val = stack[a+1]
            if val ~= nil then
                stack[a] = val
                pc = pc + b
            end
        elseif op == OP_CLOSURE then
            local p = protos[b]
            local nups = 0
            if p.upvalues then
                while p.upvalues[nups] do nups = nups + 1 end
            end

            local new_ups = {}
            if p.upvalues then
                for i = 0, nups - 1 do
                    local info = p.upvalues[i]
                    if info.isLocal then
                        local idx = info.index
                        if open_upvalues[idx] then
                            new_ups[i] = open_upvalues[idx]
                        else
                            local uv = { val = stack[idx] }
                            open_upvalues[idx] = uv
                            new_ups[i] = uv
                        end
                    else
                        new_ups[i] = upvalues[info.index]
                    end
                end
            end
            stack[a] = { proto = p, upvalues = new_ups, type = "closure" }
            setmetatable(stack[a], closure_mt)
            if open_upvalues[a] then open_upvalues[a].val = stack[a] end
        elseif op == OP_CALL then
            local func = stack[a]
            local callArgs = {}
            local numArgs = b - 1
            for i = 1, numArgs do
                callArgs[i] = stack[a + i]
            end

            if type(func) == "table" and func.type == "closure" then
                local fixedParams = func.proto.numParams or 0
                local fArgs = {}
                local vArgs = {}
                local fCount = 0
                local vCount = 0
                for i = 1, numArgs do
                    if i <= fixedParams then
                        fCount = fCount + 1
                        fArgs[fCount] = callArgs[i]
                    else
                        vCount = vCount + 1
                        vArgs[vCount] = callArgs[i]
                    end
                end
                vArgs.n = vCount

                local results = { run_vm(func, fArgs, vArgs) }
                local numResults = c - 1
                if numResults > 0 then
                    for i = 1, numResults do
                        stack[a + i - 1] = results[i]
                    end
                    if open_upvalues[a] then open_upvalues[a].val = stack[a] end
                end
            elseif type(func) == "function" then
                if func == table.sort then
                    if numArgs >= 2 then callArgs[2] = wrap_if_needed(callArgs[2]) end
                elseif func == xpcall then
                    if numArgs >= 2 then callArgs[2] = wrap_if_needed(callArgs[2]) end
                elseif func == string.gsub then
                    if numArgs >= 3 then callArgs[3] = wrap_if_needed(callArgs[3]) end
                end

                local results = { func(unpack(callArgs, 1, numArgs)) }
                local numResults = c - 1
                if numResults > 0 then
                    for i = 1, numResults do
                        stack[a + i - 1] = results[i]
                    end
                    if open_upvalues[a] then open_upvalues[a].val = stack[a] end
                elseif numResults < 0 then
                    for i = 1, #results do
                        stack[a + i - 1] = results[i]
                    end
                    if open_upvalues[a] then open_upvalues[a].val = stack[a] end
                end
            else
                local mt = getmetatable(func)
                if mt and mt.__call then
                    local metaArgs = {func}
                    for i = 1, numArgs do
                        metaArgs[i + 1] = callArgs[i]
                    end
                    local res = mt.__call(unpack(metaArgs, 1, numArgs + 1))
                    if c - 1 > 0 then
                        stack[a] = res
                        if open_upvalues[a] then open_upvalues[a].val = stack[a] end
                    end
                else
                    error("attempt to call a non-function value")
                end
            end
        elseif op == OP_RETURN then
            local n = b - 1
            if n <= 0 then
                return
            elseif n == 1 then
                return stack[a]
            else
                local res = {}
                for i = 0, n - 1 do
                    res[i + 1] = stack[a + i]
                end
                return unpack(res)
            end
        else
            error("unknown opcode: " .. tostring(op))
        end
    end
end

run_vm({ proto = main_proto, upvalues = {} }, {})
`
